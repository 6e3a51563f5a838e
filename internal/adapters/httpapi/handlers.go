package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"markercompare/internal/intake"
	"markercompare/internal/report"
	"markercompare/pkg/domain"
)

// Comparison request types.
const (
	CompareFamily  = "family"
	CompareSameDay = "sameDay"
	CompareAll     = "all"
	CompareTwo     = "two"
)

// compareParams carries the codes of a comparison. Codes are only required to
// be present; codes that name no stored sample or case answer 404.
type compareParams struct {
	Code  string `json:"code"`
	Code1 string `json:"code1"`
	Code2 string `json:"code2"`
}

func (p *compareParams) trim() {
	p.Code = strings.TrimSpace(p.Code)
	p.Code1 = strings.TrimSpace(p.Code1)
	p.Code2 = strings.TrimSpace(p.Code2)
}

type compareRequest struct {
	Type   string        `json:"type" binding:"required,oneof=family sameDay all two"`
	Params compareParams `json:"params"`
}

type checkCaseQuery struct {
	DateFolder string `form:"dateFolder" binding:"required"`
	BaseCode   string `form:"baseCode" binding:"required,casecode"`
}

func (s *Server) compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Params.trim()
	ctx := c.Request.Context()
	var (
		results []domain.ComparisonResult
		err     error
	)
	switch req.Type {
	case CompareFamily:
		if req.Params.Code == "" {
			s.fail(c, badRequest("params.code required"))
			return
		}
		results, err = s.comparer.CompareFamily(ctx, domain.BaseCode(req.Params.Code))
	case CompareSameDay, CompareAll:
		if req.Params.Code == "" {
			s.fail(c, badRequest("params.code required"))
			return
		}
		if req.Type == CompareSameDay {
			results, err = s.comparer.CompareSameDay(ctx, req.Params.Code)
		} else {
			results, err = s.comparer.CompareAllDatabase(ctx, req.Params.Code)
		}
	case CompareTwo:
		if req.Params.Code1 == "" || req.Params.Code2 == "" {
			s.fail(c, badRequest("params.code1 and params.code2 required"))
			return
		}
		results, err = s.comparer.CompareSamples(ctx, req.Params.Code1, req.Params.Code2)
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload too large"})
			return
		}
		s.fail(c, badRequest("multipart form required: "+err.Error()))
		return
	}
	bucket := strings.TrimSpace(firstValue(form.Value["dateFolder"]))
	if bucket == "" {
		s.fail(c, badRequest("dateFolder required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		s.fail(c, badRequest("files required"))
		return
	}
	files := make([]intake.File, 0, len(headers))
	for _, fh := range headers {
		content, err := readPart(fh)
		if err != nil {
			s.fail(c, err)
			return
		}
		files = append(files, intake.File{Path: uploadPath(fh), Content: content})
	}
	batch, err := s.ingester.Ingest(c.Request.Context(), bucket, files)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"batch":   batch.ID,
		"cases":   len(batch.Cases),
		"skipped": batch.Skipped,
	})
}

func (s *Server) checkCase(c *gin.Context) {
	var q checkCaseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	exists, err := s.cases.CheckCase(c.Request.Context(), q.DateFolder, q.BaseCode)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) listCases(c *gin.Context) {
	cases, err := s.cases.AllCases(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	c.JSON(http.StatusOK, cases)
}

func (s *Server) listTables(c *gin.Context) {
	tables, err := s.cases.Tables(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (s *Server) report(c *gin.Context) {
	var res domain.ComparisonResult
	if err := c.ShouldBindJSON(&res); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if res.Sample1.Code == "" || res.Sample2.Code == "" {
		s.fail(c, badRequest("sample1 and sample2 required"))
		return
	}
	c.JSON(http.StatusOK, report.Build(res, s.comparer.Catalog()))
}

func (s *Server) export(c *gin.Context) {
	var results []domain.ComparisonResult
	if err := c.ShouldBindJSON(&results); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="comparisons.csv"`)
	c.Status(http.StatusOK)
	if err := report.WriteCSV(c.Writer, results); err != nil {
		s.log.Error("write csv", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	}
}

// uploadPath recovers the client supplied relative path ("caseFolder/file")
// from the part header, which multipart otherwise reduces to a base name.
func uploadPath(fh *multipart.FileHeader) string {
	if _, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition")); err == nil {
		if name := params["filename"]; name != "" {
			return strings.ReplaceAll(name, "\\", "/")
		}
	}
	return fh.Filename
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
