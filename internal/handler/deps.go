package handler

import (
	"dmchat/internal/app/chat"
	"dmchat/internal/app/storage"
	"dmchat/internal/app/store"
	"dmchat/internal/configs"
	"dmchat/internal/pkg/pow"
)

// AppDeps carries everything the HTTP and websocket handlers need.
type AppDeps struct {
	Hub            *chat.Hub
	Chat           *chat.Service
	Users          store.UserStore
	StorageService storage.StorageService
	PoW            *pow.PoWManager
	Config         *configs.AppConfig
}

