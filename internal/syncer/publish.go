package syncer

import (
	"context"
	"fmt"
	"os"

	"github.com/evaleval/evalsync/internal/layout"
	"github.com/evaleval/evalsync/internal/metrics"
	"github.com/evaleval/evalsync/internal/remote"
	"github.com/evaleval/evalsync/pkg/logger"
)

// Publisher uploads the tables a sync run modified and refreshes the
// catalog card.
type Publisher struct {
	WorkDir      string
	ManifestPath string
	Ext          string
	DatasetName  string

	Store   remote.Store
	Log     logger.Logger
	Metrics *metrics.Recorder
}

// UploadResult lists the leaderboards handled by Upload.
type UploadResult struct {
	Uploaded []string
	Failed   []string
}

// Upload publishes every table listed as actually modified in the manifest,
// then rewrites the catalog to list the remote splits plus the uploaded
// ones. A failed table upload does not stop its siblings and is reported as
// a *RunError; a catalog failure wraps ErrCatalog.
func (p *Publisher) Upload(ctx context.Context) (*UploadResult, error) {
	m, err := ReadManifest(p.ManifestPath)
	if err != nil {
		return nil, err
	}
	res := &UploadResult{}
	if len(m.ActuallyModified) == 0 {
		p.Log.Info(ctx, "no modified leaderboards to upload")
		return res, nil
	}
	p.Log.Info(ctx, "uploading tables", logger.Strings("leaderboards", m.ActuallyModified))

	for _, lb := range m.ActuallyModified {
		if err := p.uploadTable(ctx, lb); err != nil {
			p.Log.Error(ctx, "upload failed", logger.String("leaderboard", lb), logger.Error(err))
			p.Metrics.Upload(metrics.StatusFailed)
			res.Failed = append(res.Failed, lb)
			continue
		}
		p.Metrics.Upload(metrics.StatusUploaded)
		res.Uploaded = append(res.Uploaded, lb)
	}

	if len(res.Uploaded) > 0 {
		if err := p.updateCatalog(ctx, res.Uploaded); err != nil {
			return res, err
		}
	}
	if len(res.Failed) > 0 {
		return res, &RunError{Stage: "upload", Failed: len(res.Failed)}
	}
	p.Log.Info(ctx, "upload finished", logger.Int("uploaded", len(res.Uploaded)))
	return res, nil
}

func (p *Publisher) uploadTable(ctx context.Context, lb string) error {
	local := layout.TablePath(p.WorkDir, lb, p.Ext)
	if _, err := os.Stat(local); err != nil {
		return fmt.Errorf("local table: %w", err)
	}
	key := layout.TableKey(lb, p.Ext)
	if err := p.Store.Put(ctx, key, local); err != nil {
		return err
	}
	p.Log.Info(ctx, "uploaded table", logger.String("leaderboard", lb), logger.String("key", key))
	return nil
}

func (p *Publisher) updateCatalog(ctx context.Context, uploaded []string) error {
	existing, err := remote.Tables(ctx, p.Store, p.Ext)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	splits := append(existing, uploaded...)
	card, err := remote.Catalog(p.DatasetName, p.Ext, splits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	if err := p.Store.PutBytes(ctx, layout.CatalogKey, card); err != nil {
		return fmt.Errorf("%w: %v", ErrCatalog, err)
	}
	p.Log.Info(ctx, "updated catalog", logger.Strings("uploaded", uploaded))
	return nil
}
