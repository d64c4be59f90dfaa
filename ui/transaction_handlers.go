package ui

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mmmstudio/adapters/excel"
	"mmmstudio/adapters/report"
	"mmmstudio/app"
	"mmmstudio/domain/core"
	"mmmstudio/domain/edit"
	"mmmstudio/internal/errors"
)

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Preview {{.Model}}</title></head>
<body>
<main>
{{.Body}}
</main>
</body>
</html>
`))

func (s *Server) engine(c *gin.Context) (*app.EditTransactionService, bool) {
	engine, err := s.services.Transactions.Engine(c.Param("model"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return engine, true
}

func (s *Server) handleTransactionSnapshot(c *gin.Context) {
	engine, ok := s.engine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "snapshot": engine.Snapshot()})
}

func (s *Server) handlePreview(c *gin.Context) {
	engine, ok := s.engine(c)
	if !ok {
		return
	}
	var req edit.Request
	if !bindJSON(c, &req) {
		return
	}
	tx, err := engine.BeginPreview(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "transaction": tx})
}

func (s *Server) handleCommit(c *gin.Context) {
	engine, ok := s.engine(c)
	if !ok {
		return
	}
	res, err := engine.Commit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (s *Server) handleCancel(c *gin.Context) {
	engine, ok := s.engine(c)
	if !ok {
		return
	}
	if err := engine.Cancel(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "snapshot": engine.Snapshot()})
}

// draftTransaction returns the open transaction once its preview is ready
func (s *Server) draftTransaction(c *gin.Context) (*edit.Transaction, bool) {
	engine, ok := s.engine(c)
	if !ok {
		return nil, false
	}
	snap := engine.Snapshot()
	if snap.Status != edit.StatusPreviewReady || snap.Transaction == nil || snap.Transaction.Draft == nil {
		respondError(c, errors.InvalidState("no preview is ready", core.ErrNoDraft))
		return nil, false
	}
	return snap.Transaction, true
}

func (s *Server) handleReport(c *gin.Context) {
	tx, ok := s.draftTransaction(c)
	if !ok {
		return
	}
	rep, err := report.BuildPreviewReport(tx)
	if err != nil {
		respondError(c, errors.Wrapf(err, "failed to build preview report for %s", tx.TargetModel))
		return
	}

	if c.Query("format") != "html" {
		c.JSON(http.StatusOK, gin.H{"success": true, "report": rep})
		return
	}

	var buf bytes.Buffer
	data := struct {
		Model string
		Body  template.HTML
	}{Model: tx.TargetModel, Body: template.HTML(rep.HTML)}
	if err := reportPage.Execute(&buf, data); err != nil {
		respondError(c, errors.Wrapf(err, "failed to render preview report for %s", tx.TargetModel))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleExport(c *gin.Context) {
	tx, ok := s.draftTransaction(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := s.exporter.WriteComparison(&buf, tx); err != nil {
		respondError(c, errors.Wrapf(err, "failed to export %s preview", tx.TargetModel))
		return
	}
	attachment(c, fmt.Sprintf("%s-preview.xlsx", tx.TargetModel), buf.Bytes())
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, errors.Validation(fmt.Errorf("invalid limit %q", raw)))
			return
		}
		limit = n
	}
	entries, err := s.services.Transactions.History(c.Request.Context(), c.Param("model"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "history": entries})
}

func attachment(c *gin.Context, filename string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, excel.ContentType, body)
}
