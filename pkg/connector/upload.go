// Copyright © 2018 One Concern

package connector

import (
	"bufio"
	"io"
	"path/filepath"
	"strings"

	"github.com/oneconcern/depot/pkg/checksum"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/storage/status"
	"github.com/oneconcern/depot/pkg/transfer"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

func (x *execution) upload() error {
	key := x.resource.Name
	file := x.t.File()

	if x.t.Kind() == transfer.MetadataKind {
		// merge and upload of the same remote metadata must not interleave
		unlock := x.metadataLocks.Lock(key)
		defer unlock()

		if mm, ok := x.mergeable(); ok {
			if !mm.IsMerged() {
				merged, err := x.merge(key, mm)
				if err != nil {
					return err
				}
				file = merged
			} else {
				merged, err := x.reuseMerged(key, mm)
				if err != nil {
					return err
				}
				file = merged
			}
		}
	}
	if file == "" {
		return transfer.ErrTransfer.Wrapf("no local file to upload for %s", key)
	}
	x.resource.File = file

	fileHandle, err := x.session.LocalFs.Open(file)
	if err != nil {
		return transfer.ErrTransfer.Wrapf("opening %q: %v", file, err)
	}
	defer func() {
		_ = fileHandle.Close()
	}()
	if info, ers := fileHandle.Stat(); ers == nil {
		x.resource.ContentLength = info.Size()
	}

	if err = x.session.Listener.TransferStarted(x.event(transfer.EventStarted)); err != nil {
		return err
	}

	digester := checksum.NewDigester(x.algs)
	body := x.progress(bufio.NewReaderSize(fileHandle, x.session.BufferSize))
	if err = x.store.Put(x.ctx, key, io.TeeReader(body, digester)); err != nil {
		return err
	}

	sums := digester.Sums()
	for _, alg := range x.algs {
		if err = x.store.Put(x.ctx, alg.Sidecar(key), strings.NewReader(sums[alg.Extension])); err != nil {
			return err
		}
	}
	return nil
}

// reuseMerged locates the staged content of metadata merged by an earlier transfer
func (x *execution) reuseMerged(key string, mm model.MergeableMetadata) (string, error) {
	if merged := x.t.MergedFile(); merged != "" {
		return merged, nil
	}
	if merged, ok := x.mergedFile(mm); ok {
		x.t.SetMergedFile(merged)
		return merged, nil
	}
	return "", transfer.ErrNoMergedContent.Wrapf("for %s", key)
}

// merge the pending metadata with the copy currently held by the repository
func (x *execution) merge(key string, mm model.MergeableMetadata) (string, error) {
	id := ksuid.New().String()
	current := filepath.Join(x.staging, id+"-current")
	result := filepath.Join(x.staging, id+"-merged")
	defer func() {
		_ = x.session.LocalFs.Remove(current)
	}()

	if err := x.fetch(key, current); err != nil {
		if !status.IsNotExists(err) {
			return "", transfer.ErrMerge.Wrapf("retrieving current %s: %v", key, err)
		}
		x.l.Debug("no remote metadata to merge with")
	}

	if err := mm.Merge(current, result); err != nil {
		_ = x.session.LocalFs.Remove(result)
		return "", transfer.ErrMerge.Wrap(err)
	}
	x.t.SetMergedFile(result)
	x.rememberMerged(mm, result)
	x.l.Debug("metadata merged", zap.String("merged", result))
	return result, nil
}
