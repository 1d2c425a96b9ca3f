// Copyright © 2018 One Concern

package connector

import (
	"context"
	"time"

	units "github.com/docker/go-units"
	"github.com/oneconcern/depot/pkg/errors"
	"github.com/oneconcern/depot/pkg/metrics"
	"github.com/oneconcern/depot/pkg/model"
	"github.com/oneconcern/depot/pkg/transfer"
	opentracing "github.com/opentracing/opentracing-go"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// execution drives one transfer, on the worker goroutine which picked it
type execution struct {
	*Connector
	ctx         context.Context
	t           *transfer.Transfer
	request     transfer.RequestType
	resource    transfer.Resource
	transferred atomic.Int64
	l           *zap.Logger

	// set once corruption is reported: a retried download notifies no more progress
	corrupted bool
}

func (c *Connector) run(tk task) {
	defer tk.done()

	t := tk.t
	if !t.Begin() {
		// driven by a concurrent batch: this batch is over when that execution is
		<-t.Done()
		return
	}

	key := c.key(t)
	x := &execution{
		Connector: c,
		t:         t,
		request:   requestType(tk.direction),
		resource: transfer.Resource{
			RepositoryURL: c.repo.URL,
			Name:          key,
			File:          t.File(),
			ContentLength: -1,
			Transfer:      t,
		},
		l: c.l.With(zap.String("resource", key), zap.Stringer("transfer", t)),
	}

	span, ctx := opentracing.StartSpanFromContextWithTracer(tk.ctx, c.session.Tracer, "connector."+tk.direction.String())
	span.SetTag("resource", key)
	x.ctx = ctx

	start := time.Now()
	err := x.perform(tk)
	if err != nil {
		err = x.normalize(err)
	}
	elapsed := time.Since(start)

	if err == nil && t.Succeed() {
		x.l.Debug("transfer succeeded",
			zap.String("size", units.HumanSize(float64(x.transferred.Load()))),
			zap.Duration("elapsed", elapsed))
		c.session.Listener.TransferSucceeded(x.event(transfer.EventSucceeded))
	} else if err != nil && t.Fail(err) {
		span.SetTag("error", true)
		span.LogKV("message", err.Error())
		if transfer.IsNotFound(err) || transfer.IsCancellation(err) {
			x.l.Debug("transfer failed", zap.Error(err))
		} else {
			x.l.Warn("transfer failed", zap.Error(err))
		}
		ev := x.event(transfer.EventFailed)
		ev.Err = err
		c.session.Listener.TransferFailed(ev)
	}
	span.Finish()

	metrics.RecordTransfer(context.Background(), c.repo.ID, t.Kind().String(), tk.direction.String(), x.transferred.Load(), elapsed, err != nil)
}

func (x *execution) perform(tk task) error {
	if err := x.session.Listener.TransferInitiated(x.event(transfer.EventInitiated)); err != nil {
		return err
	}
	if err := x.ctx.Err(); err != nil {
		return err
	}

	t := x.t
	if t.Kind() != tk.kind || t.Direction() != tk.direction {
		return transfer.ErrTransfer.Wrapf("%s submitted as %s %s", t, tk.direction, tk.kind)
	}
	if t.Kind() == transfer.MetadataKind && t.Metadata() == nil {
		return transfer.ErrTransfer.Wrapf("no metadata to transfer")
	}
	if t.Direction() == transfer.Upload {
		return x.upload()
	}
	return x.download()
}

// normalize maps the interruption of a transfer to a cancellation error
func (x *execution) normalize(err error) error {
	if errors.Is(err, transfer.ErrCancelled) {
		return err
	}
	if transfer.IsCancellation(err) || x.ctx.Err() != nil {
		return transfer.ErrCancelled.Wrap(err)
	}
	return err
}

func (x *execution) event(typ transfer.EventType) transfer.Event {
	return transfer.Event{
		Type:        typ,
		Request:     x.request,
		Resource:    x.resource,
		Transferred: x.transferred.Load(),
	}
}

// key locates a transfer in the repository
func (c *Connector) key(t *transfer.Transfer) string {
	if t.Kind() == transfer.MetadataKind {
		if t.Metadata() == nil {
			return ""
		}
		return c.layout.MetadataPath(t.Metadata())
	}
	return c.layout.ArtifactPath(t.Artifact())
}

func (x *execution) notFound(key string, cause error) error {
	return &transfer.NotFoundError{
		Kind:       x.t.Kind(),
		Resource:   key,
		Repository: x.repo.URL,
		Cause:      cause,
	}
}

func (x *execution) mergeable() (model.MergeableMetadata, bool) {
	if x.t.Kind() != transfer.MetadataKind {
		return nil, false
	}
	return model.AsMergeable(x.t.Metadata())
}
