// Package web serves the built-in assessment UI: a form that submits to
// the risk calculator, a reference analysis page, and an about page. The
// UI is stateless; nothing submitted through it is persisted.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/heartrisk/heartrisk/internal/domain/assessment"
	"github.com/heartrisk/heartrisk/internal/domain/reference"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"pct":   formatPercent,
	"score": formatScore,
}).ParseFS(templatesFS, "templates/*.html"))

// formatPercent renders a 0..1 score as a one-decimal percentage, e.g. 0.75 -> "75.0".
func formatPercent(v float64) string {
	return fmt.Sprintf("%.1f", v*100)
}

func formatScore(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

type renderer struct {
	templates *template.Template
}

func (r *renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// Handler serves the HTML UI routes.
type Handler struct {
	svc    *assessment.Service
	logger zerolog.Logger
}

func NewHandler(svc *assessment.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With().Str("component", "web").Logger(),
	}
}

// RegisterRoutes installs the UI renderer and routes on the echo instance.
// Callers that disable the UI simply never call this.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Renderer = &renderer{templates: templates}

	e.GET("/", h.Home)
	e.POST("/assess", h.Assess)
	e.GET("/analysis", h.Analysis)
	e.GET("/about", h.About)
}

type optionView struct {
	Value int
	Label string
}

var chestPainOptions = []optionView{
	{assessment.ChestPainTypicalAngina, "Typical Angina"},
	{assessment.ChestPainAtypicalAngina, "Atypical Angina"},
	{assessment.ChestPainNonAnginal, "Non-anginal Pain"},
	{assessment.ChestPainAsymptomatic, "Asymptomatic"},
}

var thalassemiaOptions = []optionView{
	{assessment.ThalassemiaNormal, "Normal"},
	{assessment.ThalassemiaFixedDefect, "Fixed Defect"},
	{assessment.ThalassemiaReversibleDefect, "Reversible Defect"},
}

type homeView struct {
	Title  string
	Active string

	Input              assessment.Input
	ChestPainOptions   []optionView
	ThalassemiaOptions []optionView

	Result    *assessment.Result
	Gauge     *gaugeView
	InputRows []kvRow
	Error     string
}

type kvRow struct {
	Label string
	Value string
}

func optionLabel(opts []optionView, value int) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return strconv.Itoa(value)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// inputRows flattens the submitted values into the echo table shown next
// to the result.
func inputRows(in assessment.Input) []kvRow {
	sex := "Male"
	if in.Sex == "female" {
		sex = "Female"
	}
	return []kvRow{
		{"Age", strconv.Itoa(in.Age)},
		{"Sex", sex},
		{"Resting Blood Pressure", fmt.Sprintf("%d mm Hg", in.RestingBP)},
		{"Serum Cholesterol", fmt.Sprintf("%d mg/dl", in.Cholesterol)},
		{"Maximum Heart Rate", strconv.Itoa(in.MaxHeartRate)},
		{"ST Depression", fmt.Sprintf("%.1f", in.STDepression)},
		{"Chest Pain Type", optionLabel(chestPainOptions, in.ChestPainType)},
		{"Fasting Blood Sugar > 120 mg/dl", yesNo(in.FastingBloodSugar)},
		{"Exercise Induced Angina", yesNo(in.ExerciseAngina)},
		{"Major Vessels", strconv.Itoa(in.MajorVessels)},
		{"Thalassemia", optionLabel(thalassemiaOptions, in.Thalassemia)},
	}
}

// gaugeView carries the precomputed geometry for the risk gauge bar. The
// three segments mirror the low/moderate/high bands; the marker sits at
// the assessed score.
type gaugeView struct {
	Segments   []gaugeSegment
	MarkerLeft string
}

type gaugeSegment struct {
	Label string
	Color string
	Width string
}

func newGaugeView(r *assessment.Result) *gaugeView {
	bands := reference.RiskBands()
	segments := make([]gaugeSegment, 0, len(bands))
	prev := 0.0
	for _, b := range bands {
		segments = append(segments, gaugeSegment{
			Label: b.Label,
			Color: colorHex(b.Color),
			Width: formatPercent(b.Max - prev),
		})
		prev = b.Max
	}
	return &gaugeView{
		Segments:   segments,
		MarkerLeft: formatPercent(r.Score),
	}
}

// colorHex maps the reference palette names onto the hex values the
// templates use.
func colorHex(name string) string {
	switch name {
	case "green":
		return "#00b894"
	case "yellow":
		return "#fdcb6e"
	case "orange":
		return "#e17055"
	case "red":
		return "#d63031"
	case "darkred":
		return "#8b0000"
	default:
		return "#b2bec3"
	}
}

func (h *Handler) homeView() homeView {
	return homeView{
		Title:              "Heart Disease Risk Assessment",
		Active:             "home",
		Input:              assessment.DefaultInput(),
		ChestPainOptions:   chestPainOptions,
		ThalassemiaOptions: thalassemiaOptions,
	}
}

// Home renders the assessment form with default values pre-filled.
func (h *Handler) Home(c echo.Context) error {
	return c.Render(http.StatusOK, "home.html", h.homeView())
}

// Assess handles the form submission and re-renders the form page with
// the computed result. Invalid input re-renders the form with an error
// banner and the submitted values preserved.
func (h *Handler) Assess(c echo.Context) error {
	view := h.homeView()

	in := assessment.DefaultInput()
	if err := c.Bind(&in); err != nil {
		h.logger.Debug().Err(err).Msg("form bind failed")
		view.Error = "The form could not be read. Please check the values and try again."
		return c.Render(http.StatusBadRequest, "home.html", view)
	}
	view.Input = in

	result, err := h.svc.Calculate(c.Request().Context(), in)
	if err != nil {
		h.logger.Debug().Err(err).Msg("form input failed validation")
		view.Error = "Some values are out of the accepted range. Please check the form and try again."
		return c.Render(http.StatusBadRequest, "home.html", view)
	}

	view.Result = result
	view.Gauge = newGaugeView(result)
	view.InputRows = inputRows(in)
	return c.Render(http.StatusOK, "home.html", view)
}

type analysisView struct {
	Title  string
	Active string

	Curve  curveView
	BPBars []bpBarView

	HasBP      bool
	BP         int
	BPLeft     string
	BPCategory string
}

// curveView holds the inline-SVG geometry for the age/risk curve.
type curveView struct {
	Points string
	Area   string
	Ticks  []curveTick
}

type curveTick struct {
	X     string
	Label int
}

// Plot box for the age curve SVG, in viewBox units.
const (
	curveLeft   = 40.0
	curveRight  = 560.0
	curveBottom = 260.0
	curveTop    = 40.0
	curveMinAge = 20
	curveMaxAge = 75
	curveMaxY   = 0.7
)

func newCurveView() curveView {
	points := reference.AgeRiskCurve()

	var poly string
	for i, p := range points {
		if i > 0 {
			poly += " "
		}
		poly += fmt.Sprintf("%.1f,%.1f", curveX(p.Age), curveY(p.Risk))
	}

	last := points[len(points)-1]
	first := points[0]
	area := fmt.Sprintf("%s %.1f,%.1f %.1f,%.1f", poly, curveX(last.Age), curveBottom, curveX(first.Age), curveBottom)

	ticks := make([]curveTick, 0, 6)
	for age := 20; age <= 70; age += 10 {
		ticks = append(ticks, curveTick{X: fmt.Sprintf("%.1f", curveX(age)), Label: age})
	}

	return curveView{Points: poly, Area: area, Ticks: ticks}
}

func curveX(age int) float64 {
	return curveLeft + float64(age-curveMinAge)/float64(curveMaxAge-curveMinAge)*(curveRight-curveLeft)
}

func curveY(risk float64) float64 {
	return curveBottom - risk/curveMaxY*(curveBottom-curveTop)
}

type bpBarView struct {
	Name  string
	Range string
	Color string
	Left  string
	Width string
}

// BP display scale matches the category table bounds.
const (
	bpScaleMin = 90
	bpScaleMax = 200
)

func bpLeft(v int) string {
	if v < bpScaleMin {
		v = bpScaleMin
	}
	if v > bpScaleMax {
		v = bpScaleMax
	}
	return fmt.Sprintf("%.1f", float64(v-bpScaleMin)/float64(bpScaleMax-bpScaleMin)*100)
}

func newBPBars() []bpBarView {
	cats := reference.BloodPressureCategories()
	bars := make([]bpBarView, 0, len(cats))
	for _, c := range cats {
		width := float64(c.High-c.Low) / float64(bpScaleMax-bpScaleMin) * 100
		bars = append(bars, bpBarView{
			Name:  c.Name,
			Range: fmt.Sprintf("%d–%d mm Hg", c.Low, c.High),
			Color: colorHex(c.Color),
			Left:  bpLeft(c.Low),
			Width: fmt.Sprintf("%.1f", width),
		})
	}
	return bars
}

// Analysis renders the reference charts: the age/risk curve and the
// blood pressure category scale. An optional bp query parameter places
// a "Your BP" marker on the scale.
func (h *Handler) Analysis(c echo.Context) error {
	view := analysisView{
		Title:  "Risk Analysis",
		Active: "analysis",
		Curve:  newCurveView(),
		BPBars: newBPBars(),
	}

	if raw := c.QueryParam("bp"); raw != "" {
		bp, err := strconv.Atoi(raw)
		if err == nil && bp >= 80 && bp <= 220 {
			view.HasBP = true
			view.BP = bp
			view.BPLeft = bpLeft(bp)
			view.BPCategory = reference.ClassifyBloodPressure(bp).Name
		}
	}

	return c.Render(http.StatusOK, "analysis.html", view)
}

type aboutView struct {
	Title  string
	Active string
}

// About renders the static about page.
func (h *Handler) About(c echo.Context) error {
	return c.Render(http.StatusOK, "about.html", aboutView{
		Title:  "About This Tool",
		Active: "about",
	})
}
