package main

import (
	"fmt"

	"cfoclient/internal/app/api"
	"cfoclient/internal/app/localstore"
	"cfoclient/internal/app/realtime"
	"cfoclient/internal/app/routes"
	"cfoclient/internal/app/session"
	"cfoclient/internal/app/storage"
	"cfoclient/internal/configs"
	"cfoclient/internal/pkg/logx"
)

// app holds the collaborators shared by every command.
type app struct {
	cfg *configs.AppConfig

	api     *api.Client
	history *routes.History
	store   *session.Store

	local     localstore.Store
	auth      *realtime.Auth
	rest      *realtime.REST
	transport *realtime.Transport
	uploader  storage.StorageService
}

func newApp(cfg *configs.AppConfig) (*app, error) {
	client, err := api.NewClient(cfg.BackendURL)
	if err != nil {
		return nil, err
	}

	history := routes.NewHistory(routes.Home)
	store := session.NewStore(client)
	if err := session.Install(client, store, history); err != nil {
		return nil, err
	}

	local, err := localstore.OpenSQLite(cfg.LocalStorePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	socketURL, err := realtime.SocketURL(cfg.RealtimeURL, cfg.RealtimeAnonKey)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	auth := realtime.NewAuth(cfg.RealtimeURL, cfg.RealtimeAnonKey, local)

	uploader, err := storage.NewStorageService(storage.ServiceConfig{
		ProjectURL: cfg.RealtimeURL,
		AnonKey:    cfg.RealtimeAnonKey,
		BucketName: cfg.StorageBucket,
		Region:     cfg.StorageRegion,
	}, auth)
	if err != nil {
		_ = local.Close()
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}

	history.OnNavigate(func(e routes.Entry) {
		logx.Debug("Navigated", "to", routes.PathWithQuery(e.URL), "from", e.From)
	})

	return &app{
		cfg:       cfg,
		api:       client,
		history:   history,
		store:     store,
		local:     local,
		auth:      auth,
		rest:      realtime.NewREST(cfg.RealtimeURL, cfg.RealtimeAnonKey, auth),
		transport: realtime.NewTransport(socketURL, cfg.RealtimeAnonKey, auth),
		uploader:  uploader,
	}, nil
}

// Close releases the realtime connection and the local store.
func (a *app) Close() {
	a.transport.Close()
	if err := a.local.Close(); err != nil {
		logx.Warn("Failed to close local store", "error", err.Error())
	}
}
