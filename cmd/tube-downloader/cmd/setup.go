package cmd

import (
	"net/http"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-tube-download/index"
	"go-tube-download/internal/auth"
	"go-tube-download/internal/avoidance"
	"go-tube-download/internal/database"
	"go-tube-download/internal/downloader"
	"go-tube-download/internal/extractor"
	"go-tube-download/internal/manager"
	"go-tube-download/internal/recent"
)

// appContext bundles the long-lived pieces a command needs. Close releases
// them in reverse order of construction.
type appContext struct {
	DB      *database.DB
	Index   bleve.Index
	Store   *recent.Store
	Auth    *auth.Manager
	Adapter *extractor.Adapter
	Manager *manager.Manager
}

func (a *appContext) Close() {
	if a.Manager != nil {
		a.Manager.Close()
	}
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			log.WithError(err).Warn("Error closing search index")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			log.WithError(err).Warn("Error closing database")
		}
	}
}

// openApp builds the database, history store, extractor adapter and manager
// from globalConfig. withIndex controls whether the bleve index is opened;
// commands that never search can skip it.
func openApp(withIndex bool) (*appContext, error) {
	app := &appContext{}

	authMgr, err := auth.NewManager(globalConfig.DataDir)
	if err != nil {
		return nil, err
	}
	app.Auth = authMgr

	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		return nil, err
	}
	app.DB = db

	var idx bleve.Index
	if withIndex {
		idx, err = index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
		if err != nil {
			log.WithError(err).Warn("Search index unavailable, continuing without it")
			idx = nil
		}
		app.Index = idx
	}

	store, err := recent.NewStore(db, idx, globalConfig.MaxRecent)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = store

	app.Adapter = extractor.NewAdapter(
		globalConfig.ExtractorPath,
		extractor.FindFfmpeg(globalConfig.FfmpegPath),
		authMgr.CookiesPath(),
		globalConfig.SubLangs,
	)

	policy := avoidance.NewPolicy(avoidance.Options{
		MaxRequests: globalConfig.RateLimitRequests,
		Window:      time.Duration(globalConfig.RateLimitWindowMs) * time.Millisecond,
		JitterMin:   time.Duration(globalConfig.JitterMinMs) * time.Millisecond,
		JitterMax:   time.Duration(globalConfig.JitterMaxMs) * time.Millisecond,
	})

	httpClient := &http.Client{
		Timeout:   2 * time.Minute,
		Transport: globalHttpTransport,
	}

	app.Manager = manager.New(app.Adapter, policy, store, db, manager.Options{
		Browser:        globalConfig.CookieBrowser,
		SaveThumbnails: globalConfig.SaveThumbnail,
		Thumbs:         downloader.NewDownloader(httpClient),
		SavePath:       globalConfig.SavePath,
	})
	app.Manager.Run()

	return app, nil
}
