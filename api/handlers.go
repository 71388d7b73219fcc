package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pdf_compactor/compress"
	pdfPkg "pdf_compactor/pdf"
	"pdf_compactor/pipeline"
	"pdf_compactor/split"
)

// OutputFile is a downloadable result of a run.
type OutputFile struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Size  int64  `json:"size"`
	Pages []int  `json:"pages,omitempty"`
}

// FileResult is the outcome of one uploaded file.
type FileResult struct {
	Filename    string           `json:"filename"`
	Status      pipeline.Status  `json:"status"`
	Outputs     []OutputFile     `json:"outputs"`
	Compression *compress.Result `json:"compression,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ProcessResponse is returned by HandleProcess.
type ProcessResponse struct {
	Run     string       `json:"run"`
	Mode    string       `json:"mode"`
	Level   string       `json:"level"`
	MaxMB   float64      `json:"max_mb"`
	Expires time.Time    `json:"expires"`
	Files   []FileResult `json:"files"`
}

// HandleProcess runs the pipeline over every uploaded file. Form values
// mode, level, max_mb and prefer_smaller override the server defaults.
func HandleProcess(c *gin.Context, config *Config) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File[FormFileField]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No PDF file provided"})
		return
	}
	headers := form.File[FormFileField]

	cfg, err := requestPipelineConfig(c, config.Defaults)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, header := range headers {
		if err := validateUpload(header, config.MaxFileSize); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s: %v", header.Filename, err)})
			return
		}
	}

	runID := generateUniqueID()
	runDir := filepath.Join(config.RunsDir, runID)
	inDir := filepath.Join(runDir, "in")
	cfg.OutputDir = filepath.Join(runDir, "out")
	if err := ensureTempDir(inDir); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return
	}
	defer os.RemoveAll(inDir)

	inputs := make([]string, 0, len(headers))
	names := make(map[string]string, len(headers))
	used := make(map[string]bool, len(headers))
	for _, header := range headers {
		name := uniqueName(sanitizeFilename(header.Filename), used)
		path := filepath.Join(inDir, name)
		if err := saveUpload(header, path); err != nil {
			os.RemoveAll(runDir)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save input file"})
			return
		}
		inputs = append(inputs, path)
		names[path] = header.Filename
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(config.Logger.With().Str("run", runID).Logger()),
		pipeline.WithSplitter(split.New(cfg.MaxPartBytes,
			split.WithProbe(config.Probe),
			split.WithLogger(config.Logger.With().Str("run", runID).Logger()),
		)),
	}
	if config.Compressor != nil {
		opts = append(opts, pipeline.WithCompressor(config.Compressor))
	}
	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		os.RemoveAll(runDir)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcomes := p.Run(c.Request.Context(), inputs)
	expires := scheduleCleanup(config.RunTTL, runDir)

	resp := ProcessResponse{
		Run:     runID,
		Mode:    cfg.Mode.String(),
		Level:   cfg.Level.String(),
		MaxMB:   float64(cfg.MaxPartBytes) / (1024 * 1024),
		Expires: expires,
		Files:   make([]FileResult, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		resp.Files = append(resp.Files, fileResult(runID, names[o.Input], o))
	}

	c.JSON(http.StatusOK, resp)
}

// HandleDownload serves one output of a run.
func HandleDownload(c *gin.Context, config *Config) {
	runID := c.Param("run")
	if _, err := uuid.Parse(runID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run id"})
		return
	}

	name := c.Param("name")
	if name != sanitizeFilename(name) || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
		return
	}

	path := filepath.Join(config.RunsDir, runID, "out", name)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found or expired"})
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(path, name)
}

// HandleCompress compresses one uploaded file at the requested level and
// returns it. Strategy and sizes are reported in X-Compression-* headers.
func HandleCompress(c *gin.Context, config *Config) {
	level, err := compress.ParseLevel(c.PostForm("level"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if config.Compressor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Compression is not configured"})
		return
	}

	header, err := c.FormFile(FormFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No PDF file provided"})
		return
	}
	if err := validateUpload(header, config.MaxFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := ensureTempDir(config.RunsDir); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create temp directory"})
		return
	}

	uniqueID := generateUniqueID()
	inFile := filepath.Join(config.RunsDir, "input_"+uniqueID+".pdf")
	outFile := filepath.Join(config.RunsDir, "output_"+uniqueID+"_compressed.pdf")
	defer os.Remove(inFile)
	defer os.Remove(outFile)

	if err := saveUpload(header, inFile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save input file"})
		return
	}

	res, err := config.Compressor.Compress(c.Request.Context(), level, inFile, outFile)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": truncateError(err)})
		return
	}

	filename := pipeline.BaseName(header.Filename) + "_compressed.pdf"
	c.Header("X-Compression-Strategy", res.Strategy)
	c.Header("X-Compression-Original-Size", strconv.FormatInt(res.InputSize, 10))
	c.Header("X-Compression-Size", strconv.FormatInt(res.Size, 10))
	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(outFile, filename)
}

// AnalyzeResponse is returned by HandleAnalyze.
type AnalyzeResponse struct {
	Filename         string `json:"filename"`
	Size             int64  `json:"size"`
	RecommendedLevel string `json:"recommended_level"`
	*pdfPkg.Analysis
}

// HandleAnalyze reports whether the uploaded file looks scanned.
func HandleAnalyze(c *gin.Context, config *Config) {
	if config.Renderer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analysis is not configured"})
		return
	}

	file, header, err := c.Request.FormFile(FormFileField)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No PDF file provided"})
		return
	}
	defer file.Close()

	if err := validatePDFFile(file, header, config.MaxFileSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read input file"})
		return
	}

	doc, err := pdfPkg.Load(header.Filename, data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": truncateError(err)})
		return
	}

	analysis, err := pdfPkg.Analyze(c.Request.Context(), config.Renderer, doc)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
		return
	}

	level := compress.LevelStandard
	if analysis.Scanned {
		level = compress.LevelExtreme
	}
	c.JSON(http.StatusOK, AnalyzeResponse{
		Filename:         header.Filename,
		Size:             doc.Size(),
		RecommendedLevel: level.String(),
		Analysis:         analysis,
	})
}

// requestPipelineConfig applies the form overrides to defaults.
func requestPipelineConfig(c *gin.Context, defaults pipeline.Config) (pipeline.Config, error) {
	cfg := defaults
	cfg.TempDir = ""

	if v := c.PostForm("mode"); v != "" {
		mode, err := pipeline.ParseMode(v)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if v := c.PostForm("level"); v != "" {
		level, err := compress.ParseLevel(v)
		if err != nil {
			return cfg, err
		}
		cfg.Level = level
	}
	if v := c.PostForm("max_mb"); v != "" {
		mb, err := strconv.ParseFloat(v, 64)
		if err != nil || mb <= 0 {
			return cfg, fmt.Errorf("max_mb must be a positive number, got %q", v)
		}
		cfg.MaxPartBytes = int64(mb * 1024 * 1024)
	}
	if v := c.PostForm("prefer_smaller"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("prefer_smaller must be a boolean, got %q", v)
		}
		cfg.PreferSmaller = b
	}
	return cfg, nil
}

func fileResult(runID, filename string, o pipeline.Outcome) FileResult {
	r := FileResult{
		Filename: filename,
		Status:   o.Status,
		Outputs:  []OutputFile{},
		Error:    o.Error,
	}
	if o.Compression != nil {
		res := *o.Compression
		res.Path = ""
		r.Compression = &res
	}

	output := func(path string, size int64, pages []int) OutputFile {
		name := filepath.Base(path)
		return OutputFile{
			Name:  name,
			URL:   "/api/pdf/runs/" + runID + "/" + name,
			Size:  size,
			Pages: pages,
		}
	}

	if len(o.Parts) > 0 {
		for _, part := range o.Parts {
			r.Outputs = append(r.Outputs, output(part.Path, part.Size, part.Pages))
		}
		return r
	}
	for _, path := range o.Outputs {
		var size int64
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		r.Outputs = append(r.Outputs, output(path, size, nil))
	}
	return r
}

// validateUpload opens an uploaded file and checks it with validatePDFFile.
func validateUpload(header *multipart.FileHeader, maxSize int64) error {
	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %v", err)
	}
	defer file.Close()
	return validatePDFFile(file, header, maxSize)
}

// saveUpload copies an uploaded file to path, removing it on failure.
func saveUpload(header *multipart.FileHeader, path string) error {
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer file.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = out.ReadFrom(file)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}

// scheduleCleanup removes paths once ttl has elapsed and returns that time.
func scheduleCleanup(ttl time.Duration, paths ...string) time.Time {
	if ttl <= 0 {
		ttl = FileCleanupDelay
	}
	time.AfterFunc(ttl, func() {
		for _, p := range paths {
			os.RemoveAll(p)
		}
	})
	return time.Now().Add(ttl)
}

// truncateError keeps error messages returned to clients short.
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > MaxErrorMessageLength {
		return msg[:MaxErrorMessageLength] + "..."
	}
	return msg
}

// uniqueName appends _2, _3, ... to name until it is not in used.
func uniqueName(name string, used map[string]bool) string {
	candidate := name
	ext := filepath.Ext(name)
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), i, ext)
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// ensureTempDir creates the temp directory if it doesn't exist
func ensureTempDir(tempDir string) error {
	return os.MkdirAll(tempDir, DefaultFilePermissions)
}

// sanitizeFilename removes path traversal attempts and dangerous characters
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "..", "")
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	filename = filepath.Base(filename)
	filename = strings.TrimSpace(filename)

	if filename == "" || filename == "." {
		filename = "document.pdf"
	}

	return filename
}

// generateUniqueID generates a unique identifier for a run or temp file
func generateUniqueID() string {
	return uuid.NewString()
}

// validatePDFFile checks the size limit and the PDF header
func validatePDFFile(file multipart.File, header *multipart.FileHeader, maxSize int64) error {
	if header.Size > maxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed %d bytes", header.Size, maxSize)
	}

	buffer := make([]byte, 4)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read file header: %v", err)
	}

	if n < 4 || string(buffer[:4]) != "%PDF" {
		return fmt.Errorf("invalid PDF file: header does not match")
	}

	// Seek back to beginning for subsequent reads
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to reset file position: %v", err)
	}

	return nil
}
