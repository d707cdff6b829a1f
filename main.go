package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ridge/must/v2"

	"pdf-replacer/config"
	"pdf-replacer/handlers"
	"pdf-replacer/logger"
	"pdf-replacer/preview"
)

// dataDir 上传与输出文件的根目录
const dataDir = "data"

func main() {
	cfg := must.OK1(config.Load())
	log := must.OK1(logger.New(cfg.LoggerOptions()))
	defer log.Close()

	var opts []handlers.Option
	fontPath, err := cfg.ResolveCJKFont(log)
	if err != nil {
		log.Warn("预览字体不可用，使用内置字体", logger.Fields{"错误": err.Error()})
	} else if fontPath != "" {
		opts = append(opts, handlers.WithPreviewFont(must.OK1(preview.LoadFont(fontPath))))
	}

	srv := handlers.NewServer(cfg, dataDir, log, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv.Sessions().StartCleanup(ctx, time.Hour, func(ids []string) {
		for _, id := range ids {
			srv.CleanupSession(id)
		}
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("关闭服务器失败", err)
		}
	}()

	log.Info("PDF 文本替换服务启动", logger.Fields{
		"地址":  cfg.ListenAddr,
		"提供商": cfg.Provider.Type,
		"排版":  cfg.FitMode,
	})
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("服务器异常退出", err)
		os.Exit(1)
	}

	// 等待进行中的任务写完输出
	srv.Wait()
	log.Info("服务器已停止")
}
