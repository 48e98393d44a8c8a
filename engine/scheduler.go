package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// InitializeSchedules starts the render cache pruning job and returns the
// scheduler so the caller can stop it
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	c := cron.New()
	ttl := serverHandler.ServerConfig.CacheTTLMinutes
	if ttl <= 0 {
		return c
	}

	var pruneJob cron.Job
	pruneJob = cron.FuncJob(func() { serverHandler.pruneJobFunc(time.Duration(ttl) * time.Minute) })
	pruneJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(pruneJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %dm", serverHandler.ServerConfig.PruneInterval), pruneJob); err != nil {
		Logger.Error("Unable to schedule render cache pruning", "error", err)
		return c
	}
	Logger.Info("Adding render cache prune scheduler", "interval_minutes", serverHandler.ServerConfig.PruneInterval, "ttl_minutes", ttl)
	c.Start()
	return c
}

// pruneJobFunc deletes cached renders older than ttl
func (serverHandler *ServerHandler) pruneJobFunc(ttl time.Duration) int {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in prune job", "panic", r)
		}
	}()

	deleted, err := serverHandler.DB.DeleteOldRenders(ttl)
	if err != nil {
		Logger.Error("Unable to prune render cache", "error", err)
		return 0
	}
	Logger.Info("Pruned render cache", "deleted", deleted, "olderThan", ttl)
	return deleted
}
