/*
Package depot transfers artifacts and their metadata between local files and
remote repositories.

A repository connector, built by a connector factory for a repository URL, runs
batches of uploads and downloads on a bounded pool of workers. It reports the
progress of every transfer to a listener, verifies the checksums published
beside each remote file, and merges repository metadata with the copy already
held remotely before publishing it.

Repositories may live on a local file system (file://), S3 (s3://), Google Cloud
Storage (gs://) or any HTTP server accepting PUT requests (http:// and https://).
See package connector.
*/
package depot
