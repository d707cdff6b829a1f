package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"

	"pdf-replacer/config"
	"pdf-replacer/logger"
	"pdf-replacer/middleware"
	"pdf-replacer/models"
	"pdf-replacer/pipeline"
	"pdf-replacer/preview"
	"pdf-replacer/replacer"
	"pdf-replacer/translator"
)

// maxTranslationsSize 上传译文文件的大小上限
const maxTranslationsSize = 8 << 20

// TranslatorFactory 为一个任务创建翻译服务
//
// static 非空时为请求附带的译文 JSON；cacheDir 为该会话的缓存目录。
type TranslatorFactory func(req models.ReplaceRequest, static []byte, cacheDir string) (pipeline.Translator, error)

// Server HTTP 接口
type Server struct {
	cfg         *config.Config
	log         *logger.Logger
	tasks       *TaskManager
	sessions    *middleware.SessionManager
	dataDir     string
	factory     TranslatorFactory
	previewFont *truetype.Font
	wg          sync.WaitGroup
}

// Option 服务选项
type Option func(*Server)

// WithTranslatorFactory 替换默认的翻译服务创建方式
func WithTranslatorFactory(f TranslatorFactory) Option {
	return func(s *Server) { s.factory = f }
}

// WithPreviewFont 预览图使用的字体
func WithPreviewFont(f *truetype.Font) Option {
	return func(s *Server) { s.previewFont = f }
}

// WithSessions 使用指定的会话管理器
func WithSessions(sm *middleware.SessionManager) Option {
	return func(s *Server) { s.sessions = sm }
}

// NewServer 创建服务，上传与输出文件保存在 dataDir/users/<会话>/ 下
func NewServer(cfg *config.Config, dataDir string, log *logger.Logger, opts ...Option) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		cfg:     cfg,
		log:     log.With("HTTP"),
		tasks:   NewTaskManager(),
		dataDir: dataDir,
	}
	s.factory = s.defaultTranslator
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = middleware.NewSessionManager(0)
	}
	return s
}

// Tasks 任务管理器
func (s *Server) Tasks() *TaskManager {
	return s.tasks
}

// Sessions 会话管理器
func (s *Server) Sessions() *middleware.SessionManager {
	return s.sessions
}

// Wait 等待所有后台任务结束
func (s *Server) Wait() {
	s.wg.Wait()
}

// Router 创建路由
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// 设置最大上传文件大小 (100MB)
	r.MaxMultipartMemory = 100 << 20
	r.Use(s.sessions.Middleware())

	api := r.Group("/api")
	{
		api.POST("/replace", s.ReplaceHandler)
		api.GET("/status/:taskId", s.GetStatusHandler)
		api.GET("/download/:taskId", s.DownloadHandler)
		api.GET("/report/:taskId", s.ReportHandler)
		api.GET("/preview/:taskId/:page", s.PreviewHandler)
		api.GET("/tasks", s.GetTasksHandler)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// CleanupSession 删除会话的任务与文件
func (s *Server) CleanupSession(sessionID string) {
	n := s.tasks.RemoveSession(sessionID)
	if err := os.RemoveAll(s.userDir(sessionID)); err != nil {
		s.log.Error("删除会话目录失败", err, logger.Fields{"会话": sessionID})
		return
	}
	s.log.Info("会话已过期", logger.Fields{"会话": sessionID, "任务数": n})
}

func (s *Server) userDir(sessionID string) string {
	return filepath.Join(s.dataDir, "users", sessionID)
}

// ReplaceHandler 处理上传并创建替换任务
func (s *Server) ReplaceHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未找到上传文件"})
		return
	}
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "只支持 .pdf 文件"})
		return
	}

	var req models.ReplaceRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数格式错误: " + err.Error()})
		return
	}
	if req.Direction != "" && !req.AutoDetect {
		if _, err := translator.ParseDirection(req.Direction); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	fitMode := s.cfg.FitMode
	if req.FitMode != "" {
		if fitMode, err = replacer.ParseFitMode(req.FitMode); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	static := []byte(req.Translations)
	if fh, err := c.FormFile("translationsFile"); err == nil {
		if static, err = readUpload(fh); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	tr, err := s.factory(req, static, filepath.Join(s.userDir(sessionID), "cache"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "创建翻译服务失败: " + err.Error()})
		return
	}

	taskID := uuid.New().String()
	task := &models.ReplaceTask{
		ID:         taskID,
		SessionID:  sessionID,
		SourceFile: file.Filename,
		Direction:  req.Direction,
		FitMode:    string(fitMode),
		Status:     models.StatusPending,
		CreatedAt:  time.Now(),
	}
	if req.AutoDetect {
		task.Direction = ""
	}
	s.tasks.AddTask(sessionID, task)

	uploadDir := filepath.Join(s.userDir(sessionID), "uploads")
	sourcePath := filepath.Join(uploadDir, taskID+".pdf")
	err = os.MkdirAll(uploadDir, 0755)
	if err == nil {
		err = c.SaveUploadedFile(file, sourcePath)
	}
	if err != nil {
		s.tasks.UpdateTask(sessionID, taskID, func(t *models.ReplaceTask) {
			t.Status = models.StatusFailed
			t.Error = "保存文件失败: " + err.Error()
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败: " + err.Error()})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(sessionID, *task, sourcePath, tr, fitMode)
	}()

	c.JSON(http.StatusOK, gin.H{
		"taskId":  taskID,
		"message": "替换任务已创建",
	})
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if fh.Size > maxTranslationsSize {
		return nil, fmt.Errorf("译文文件过大: %s", logger.FormatBytes(fh.Size))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("读取译文文件失败: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxTranslationsSize))
}

// defaultTranslator 请求附带译文时使用静态提供商，否则使用配置中的提供商
func (s *Server) defaultTranslator(req models.ReplaceRequest, static []byte, cacheDir string) (pipeline.Translator, error) {
	var provider translator.Provider
	var err error
	if len(static) > 0 {
		provider, err = translator.ParseStaticProvider(static)
	} else {
		provider, err = translator.NewProvider(s.cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	cache, err := translator.NewCache(cacheDir)
	if err != nil {
		return nil, err
	}
	// 强制重新翻译时不读缓存
	if req.ForceRetranslate {
		cache.DisableCache()
	}
	return translator.NewClient(provider, cache, s.log).WithRetry(s.cfg.MaxRetries, s.cfg.RetryBaseDelay), nil
}

// process 后台执行替换任务
func (s *Server) process(sessionID string, task models.ReplaceTask, sourcePath string, tr pipeline.Translator, fitMode replacer.FitMode) {
	taskID := task.ID
	fields := logger.Fields{"会话": sessionID[:min(8, len(sessionID))], "任务": taskID}
	s.tasks.UpdateTask(sessionID, taskID, func(t *models.ReplaceTask) {
		t.Status = models.StatusProcessing
	})
	s.log.Info("开始处理任务", fields)

	defer func() {
		if r := recover(); r != nil {
			s.fail(sessionID, taskID, fmt.Errorf("处理过程出错: %v", r), fields)
		}
	}()

	var direction translator.Direction
	if task.Direction != "" {
		direction, _ = translator.ParseDirection(task.Direction)
	}

	engine, err := pipeline.New(tr, pipeline.Options{
		Fonts:       s.cfg.Fonts(),
		FitMode:     fitMode,
		ForceCover:  s.cfg.ForceCoverErase,
		Direction:   direction,
		PageWorkers: s.cfg.PageWorkers,
		MaxPages:    s.cfg.MaxPages,
		Logger:      s.log,
		Progress: func(current, total int, message string) {
			s.tasks.UpdateTask(sessionID, taskID, func(t *models.ReplaceTask) {
				t.Progress = float64(current) / float64(total)
				t.Message = message
			})
		},
	})
	if err != nil {
		s.fail(sessionID, taskID, err, fields)
		return
	}

	output := filepath.Join(s.userDir(sessionID), "outputs", taskID+".pdf")
	report, err := engine.Run(context.Background(), sourcePath, output)
	if err != nil {
		s.fail(sessionID, taskID, err, fields)
		return
	}

	s.tasks.setReport(sessionID, taskID, report)
	s.tasks.UpdateTask(sessionID, taskID, func(t *models.ReplaceTask) {
		t.Status = models.StatusCompleted
		t.Progress = 1.0
		t.Direction = string(report.Direction)
		t.Pages = len(report.Pages)
		t.Degraded = len(report.Events)
		t.CompletedAt = time.Now()
		t.OutputPath = report.Output
	})
	s.log.Info("任务完成", fields, logger.Fields{"降级数": len(report.Events)})
}

func (s *Server) fail(sessionID, taskID string, err error, fields logger.Fields) {
	s.tasks.UpdateTask(sessionID, taskID, func(t *models.ReplaceTask) {
		t.Status = models.StatusFailed
		t.Error = err.Error()
		t.ErrorCode = int(pipeline.CodeOf(err))
		t.CompletedAt = time.Now()
	})
	s.log.Error("任务失败", err, fields)
}

// lookup 读取当前会话的任务，失败时已写出响应
func (s *Server) lookup(c *gin.Context) (models.ReplaceTask, bool) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return models.ReplaceTask{}, false
	}
	task, ok := s.tasks.GetTask(sessionID, c.Param("taskId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或无权访问"})
		return models.ReplaceTask{}, false
	}
	return task, true
}

// completed 读取已完成任务的报告，失败时已写出响应
func (s *Server) completed(c *gin.Context) (models.ReplaceTask, *pipeline.Report, bool) {
	task, ok := s.lookup(c)
	if !ok {
		return task, nil, false
	}
	if task.Status != models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务未完成"})
		return task, nil, false
	}
	report, ok := s.tasks.GetReport(task.SessionID, task.ID)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务报告丢失"})
		return task, nil, false
	}
	return task, report, true
}

// GetStatusHandler 获取任务状态
func (s *Server) GetStatusHandler(c *gin.Context) {
	if task, ok := s.lookup(c); ok {
		c.JSON(http.StatusOK, task)
	}
}

// DownloadHandler 下载替换后的文件
func (s *Server) DownloadHandler(c *gin.Context) {
	task, _, ok := s.completed(c)
	if !ok {
		return
	}
	base := strings.TrimSuffix(task.SourceFile, filepath.Ext(task.SourceFile))
	lang := translator.Direction(task.Direction).TargetLanguage()
	c.FileAttachment(task.OutputPath, fmt.Sprintf("%s_%s.pdf", base, lang))
}

// ReportHandler 返回降级事件与统计信息
func (s *Server) ReportHandler(c *gin.Context) {
	if _, report, ok := s.completed(c); ok {
		c.JSON(http.StatusOK, report)
	}
}

// PreviewHandler 返回一页的版面预览 PNG
func (s *Server) PreviewHandler(c *gin.Context) {
	_, report, ok := s.completed(c)
	if !ok {
		return
	}
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的页码"})
		return
	}
	page, ok := report.Layout.Page(n)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("第 %d 页不存在", n)})
		return
	}

	scale := 1.5
	if v := c.Query("scale"); v != "" {
		if scale, err = strconv.ParseFloat(v, 64); err != nil || scale <= 0 || scale > 4 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "缩放比例必须在 (0, 4] 之间"})
			return
		}
	}

	fitMode := s.cfg.FitMode
	if v := c.Query("fitMode"); v != "" {
		if fitMode, err = replacer.ParseFitMode(v); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	err = preview.WritePNG(c.Writer, *page, report.Events, preview.Options{
		Scale:   scale,
		FitMode: fitMode,
		Font:    s.previewFont,
	})
	if err != nil {
		s.log.Error("生成预览失败", err, logger.Fields{"页码": n})
	}
}

// GetTasksHandler 获取当前会话的所有任务
func (s *Server) GetTasksHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}
	taskList := s.tasks.GetUserTasks(sessionID)
	c.JSON(http.StatusOK, gin.H{
		"tasks": taskList,
		"total": len(taskList),
	})
}
