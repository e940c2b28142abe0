package main

import (
	"github.com/vnyvk2/ChatServiceApp/internal/config"
	"github.com/vnyvk2/ChatServiceApp/internal/crypto"
	"github.com/vnyvk2/ChatServiceApp/internal/db"
	clog "github.com/vnyvk2/ChatServiceApp/internal/log"
	"github.com/vnyvk2/ChatServiceApp/internal/server"
	"github.com/vnyvk2/ChatServiceApp/internal/service"
	"github.com/vnyvk2/ChatServiceApp/internal/ws"

	"github.com/rs/zerolog/log"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	gdb, err := db.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	codec, err := crypto.New(cfg.MessageKeyBase64)
	if err != nil {
		log.Fatal().Err(err).Msg("message codec")
	}

	hub := ws.NewHub()
	memberSvc := service.NewMembershipService(gdb, hub)
	roomSvc := service.NewRoomService(gdb, hub, memberSvc)
	msgSvc := service.NewMessageService(gdb, codec, hub, memberSvc)
	userSvc := service.NewUserService(gdb, cfg)
	presenceSvc := service.NewPresenceService(gdb, hub, memberSvc)

	h := server.NewHandler(userSvc, roomSvc, msgSvc, memberSvc, presenceSvc)
	r := server.SetupRouter(cfg, gdb, hub, h, memberSvc, msgSvc, presenceSvc)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
