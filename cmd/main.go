package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"vanishchat/backend/internal/api/handler"
	"vanishchat/backend/internal/chathub"
	"vanishchat/backend/internal/config"
	"vanishchat/backend/internal/expiry"
	"vanishchat/backend/internal/store"
)

func main() {
	log.Println("Starting VanishChat relay...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Everything lives in this store; nothing survives a restart by design.
	st := store.New(store.Options{
		RoomTTL:                  cfg.RoomTTL,
		DefaultMessageTTLSeconds: cfg.DefaultMessageTTLSeconds,
	})

	scheduler := expiry.NewScheduler(st, cfg.RoomSweepInterval)
	scheduler.Rearm()

	registry := chathub.NewRegistry()
	hub := chathub.NewManager(st, scheduler, registry)

	// Optional pub/sub bridge for multi-instance deployments. Frames only
	// pass through Redis; no key is ever written.
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
		bridge := chathub.NewBridge(rdb, hub)
		go bridge.Run(context.Background())
		log.Println("Broadcast bridge enabled via", cfg.RedisAddr)
	}

	go hub.Run()
	go scheduler.Run()

	r := gin.Default()
	h := handler.NewHandler(hub, st, registry, cfg)

	r.POST("/api/rooms", h.CreateRoom)
	r.GET("/api/rooms/resolve", h.ResolveLink)
	r.GET("/api/rooms/:roomId", h.GetRoom)
	r.GET("/api/rooms/:roomId/messages", h.ListMessages)
	r.POST("/api/rooms/:roomId/messages/:messageId/viewed", h.MarkViewed)
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
