package api

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pft-interp-server/internal/domain"
)

//go:embed templates/*.html
var templatesFS embed.FS

// loadTemplates parses the embedded HTML templates into the router.
func (s *Server) loadTemplates() {
	templ := template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))
	s.router.SetHTMLTemplate(templ)
}

// interpretForm mirrors the browser form fields one to one.
type interpretForm struct {
	Age      int     `form:"age" binding:"required"`
	Sex      string  `form:"sex" binding:"required"`
	HeightCM float64 `form:"height_cm" binding:"required"`
	WeightKG float64 `form:"weight_kg" binding:"required"`

	PreFVCLiters  float64 `form:"pre_fvc_liters" binding:"required"`
	PreFVCPP      int     `form:"pre_fvc_pp" binding:"required"`
	PreFEV1Liters float64 `form:"pre_fev1_liters" binding:"required"`
	PreFEV1PP     int     `form:"pre_fev1_pp" binding:"required"`
	PreRatio      int     `form:"pre_ratio" binding:"required"`

	PostFVCLiters  float64 `form:"post_fvc_liters" binding:"required"`
	PostFVCPP      int     `form:"post_fvc_pp" binding:"required"`
	PostFEV1Liters float64 `form:"post_fev1_liters" binding:"required"`
	PostFEV1PP     int     `form:"post_fev1_pp" binding:"required"`
	PostRatio      int     `form:"post_ratio" binding:"required"`
}

// record converts the form into the canonical test record.
func (f interpretForm) record() *domain.TestRecord {
	return &domain.TestRecord{
		Demographics: domain.Demographics{
			Age:      f.Age,
			Sex:      domain.Sex(strings.ToUpper(strings.TrimSpace(f.Sex))),
			HeightCM: f.HeightCM,
			WeightKG: f.WeightKG,
		},
		PFTResults: domain.PFTResults{
			PreBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: f.PreFVCLiters, PercentPredicted: float64(f.PreFVCPP)},
				FEV1:         domain.Measurement{Liters: f.PreFEV1Liters, PercentPredicted: float64(f.PreFEV1PP)},
				FEV1FVCRatio: domain.RatioMeasurement{Value: float64(f.PreRatio)},
			},
			PostBronchodilator: domain.TestPhaseResult{
				FVC:          domain.Measurement{Liters: f.PostFVCLiters, PercentPredicted: float64(f.PostFVCPP)},
				FEV1:         domain.Measurement{Liters: f.PostFEV1Liters, PercentPredicted: float64(f.PostFEV1PP)},
				FEV1FVCRatio: domain.RatioMeasurement{Value: float64(f.PostRatio)},
			},
		},
	}
}

// handleIndex serves the input form.
func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":   "PFT Automated Interpretation Tool",
		"Version": serverVersion,
	})
}

// handleInterpretForm handles a browser form submission and renders the
// result page. Errors render into the same template; the browser flow
// never sees raw JSON.
func (s *Server) handleInterpretForm(c *gin.Context) {
	var form interpretForm
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusUnprocessableEntity, "results_partial.html", gin.H{
			"Error": "Invalid form input: " + err.Error(),
		})
		return
	}

	record := form.record()
	if errs := s.parser.ValidateTestRecord(record); len(errs) > 0 {
		messages := make([]string, len(errs))
		for i, err := range errs {
			messages[i] = err.Error()
		}
		c.HTML(http.StatusOK, "results_partial.html", gin.H{
			"Error": fmt.Sprintf("Invalid PFT data: %s", strings.Join(messages, "; ")),
		})
		return
	}

	rep, err := s.reports.Comprehensive(record, false)
	if err != nil {
		c.HTML(http.StatusOK, "results_partial.html", gin.H{
			"Error": fmt.Sprintf("An unexpected server error occurred: %s", err.Error()),
		})
		return
	}

	c.HTML(http.StatusOK, "results_partial.html", gin.H{
		"Report": rep,
	})
}
