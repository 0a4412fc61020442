package handler

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/z0w13/dmserv/internal/model"
	"go.uber.org/zap"
)

// GatewayHandler tracks shard connection state from gateway events
type GatewayHandler struct {
	stats  *model.Stats
	logger *zap.Logger
	now    func() time.Time
}

// NewGatewayHandler creates a new gateway event handler
func NewGatewayHandler(stats *model.Stats, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		stats:  stats,
		logger: logger,
		now:    time.Now,
	}
}

// OnReady records the shard count and marks the shard connected
func (g *GatewayHandler) OnReady(s *discordgo.Session, r *discordgo.Ready) {
	shardID, total := s.ShardID, s.ShardCount
	if r.Shard != nil {
		shardID, total = r.Shard[0], r.Shard[1]
	}
	if total < 1 {
		total = 1
	}

	g.stats.SetTotalShards(total)
	g.stats.ShardConnected(shardID, g.now())
	g.logger.Info("Shard ready",
		zap.Int("shard_id", shardID),
		zap.Int("total_shards", total),
		zap.Int("guilds", len(r.Guilds)))
}

// OnResumed marks the shard connected again after a resume
func (g *GatewayHandler) OnResumed(s *discordgo.Session, _ *discordgo.Resumed) {
	g.stats.ShardConnected(s.ShardID, g.now())
	g.logger.Info("Shard resumed", zap.Int("shard_id", s.ShardID))
}

// OnDisconnect marks the shard disconnected
func (g *GatewayHandler) OnDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	g.stats.ShardDisconnected(s.ShardID)
	g.logger.Warn("Shard disconnected", zap.Int("shard_id", s.ShardID))
}

// Register adds the gateway event handlers to a session
func (g *GatewayHandler) Register(s *discordgo.Session) {
	s.AddHandler(g.OnReady)
	s.AddHandler(g.OnResumed)
	s.AddHandler(g.OnDisconnect)
}
