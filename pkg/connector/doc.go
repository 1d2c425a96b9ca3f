// Package connector executes batches of transfers against a remote repository.
//
// A RepositoryConnector is bound to one repository and one session for its lifetime.
// Put and Get dispatch every transfer of a batch to a bounded pool of workers shared by all
// the batches of the connector, then block until each transfer is Done or Failed.
// Failures are recorded on the transfers: the batch calls only fail when the connector is closed.
//
// Mergeable metadata is merged with its remote copy before being uploaded, and uploads to the same
// metadata path are serialized within the connector. Destination directories are created
// with a create-or-confirm-exists policy, so concurrent batches may target the same directories.
//
// Connectors are obtained from a Factory, which resolves a storage backend for the protocol of the repository:
//
//	conn, err := connector.DefaultFactory{}.NewInstance(ctx, session, connector.RemoteRepository{
//		ID:  "releases",
//		URL: "file:///var/lib/repository",
//	})
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//
//	up := transfer.NewArtifactUpload(model.NewArtifact("org.example", "lib", "jar", "", "1.0"), "lib.jar")
//	_ = conn.Put(ctx, []*transfer.Transfer{up}, nil)
//	if up.State() == transfer.Failed {
//		return up.Err()
//	}
package connector
