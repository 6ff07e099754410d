package content

import (
	"encoding/json"
	"fmt"
	"slices"
)

// BlockType names a payload variant.
type BlockType string

const (
	TypeMarkdown           BlockType = "markdown"
	TypeCallout            BlockType = "callout"
	TypeQuote              BlockType = "quote"
	TypeAnimatedQuote      BlockType = "animated-quote"
	TypeStatistics         BlockType = "statistics"
	TypeAnimatedStatistics BlockType = "animated-statistics"
	TypeTimeline           BlockType = "timeline"
	TypeClimateTimeline    BlockType = "climate-timeline"
	TypeVisualization      BlockType = "visualization"
	TypeClimateDashboard   BlockType = "climate-dashboard"
	TypeTemperatureSpiral  BlockType = "temperature-spiral"
	TypeInteractiveMap     BlockType = "interactive-map"
	TypeInteractiveCallout BlockType = "interactive-callout"
	TypeImpactComparison   BlockType = "impact-comparison"
	TypeKPIShowcase        BlockType = "kpi-showcase"
	TypeClimateInfographic BlockType = "climate-infographic"
	TypeImage              BlockType = "image"
	TypeVideo              BlockType = "video"
	TypeEmbed              BlockType = "embed"
	TypeLayerComparison    BlockType = "layer-comparison"
	TypeScenarioComparison BlockType = "scenario-comparison"
	TypeReferences         BlockType = "references"
	TypeDivider            BlockType = "divider"
	TypeHero               BlockType = "hero"
)

// Payload is the typed data of a block. The set of implementations is closed:
// every variant is registered in payloadTypes.
//
// Shared returns a copy holding only the language-neutral fields, with every
// translatable string cleared. TextFields points at the translatable strings
// in reading order.
type Payload interface {
	BlockType() BlockType
	Shared() Payload
	TextFields() []*string
}

// Texts returns the translatable strings of p in reading order.
func Texts(p Payload) []string {
	fields := p.TextFields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = *f
	}
	return out
}

// MapTexts replaces every translatable string of p with fn's result.
func MapTexts(p Payload, fn func(string) (string, error)) error {
	for _, f := range p.TextFields() {
		v, err := fn(*f)
		if err != nil {
			return err
		}
		*f = v
	}
	return nil
}

// ClonePayload returns a deep copy of p.
func ClonePayload(p Payload) (Payload, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", p.BlockType(), err)
	}
	return DecodePayload(p.BlockType(), data)
}

var payloadTypes = map[BlockType]func() Payload{
	TypeMarkdown:           func() Payload { return &Markdown{} },
	TypeCallout:            func() Payload { return &Callout{} },
	TypeQuote:              func() Payload { return &Quote{} },
	TypeAnimatedQuote:      func() Payload { return &AnimatedQuote{} },
	TypeStatistics:         func() Payload { return &Statistics{} },
	TypeAnimatedStatistics: func() Payload { return &AnimatedStatistics{} },
	TypeTimeline:           func() Payload { return &Timeline{} },
	TypeClimateTimeline:    func() Payload { return &ClimateTimeline{} },
	TypeVisualization:      func() Payload { return &Visualization{} },
	TypeClimateDashboard:   func() Payload { return &ClimateDashboard{} },
	TypeTemperatureSpiral:  func() Payload { return &TemperatureSpiral{} },
	TypeInteractiveMap:     func() Payload { return &InteractiveMap{} },
	TypeInteractiveCallout: func() Payload { return &InteractiveCallout{} },
	TypeImpactComparison:   func() Payload { return &ImpactComparison{} },
	TypeKPIShowcase:        func() Payload { return &KPIShowcase{} },
	TypeClimateInfographic: func() Payload { return &ClimateInfographic{} },
	TypeImage:              func() Payload { return &Image{} },
	TypeVideo:              func() Payload { return &Video{} },
	TypeEmbed:              func() Payload { return &Embed{} },
	TypeLayerComparison:    func() Payload { return &LayerComparison{} },
	TypeScenarioComparison: func() Payload { return &ScenarioComparison{} },
	TypeReferences:         func() Payload { return &References{} },
	TypeDivider:            func() Payload { return &Divider{} },
	TypeHero:               func() Payload { return &Hero{} },
}

// BlockTypes lists every block type.
func BlockTypes() []BlockType {
	out := make([]BlockType, 0, len(payloadTypes))
	for t := range payloadTypes {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// NewPayload returns an empty payload of type t.
func NewPayload(t BlockType) (Payload, error) {
	mk, ok := payloadTypes[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidBlock, t)
	}
	return mk(), nil
}

// DecodePayload decodes data into the variant named by t. Empty data yields
// the zero payload.
func DecodePayload(t BlockType, data []byte) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || string(data) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s data: %v", ErrInvalidBlock, t, err)
	}
	return p, nil
}

// Markdown text lives in Block.Content.
type Markdown struct{}

func (*Markdown) BlockType() BlockType { return TypeMarkdown }
func (*Markdown) Shared() Payload      { return &Markdown{} }
func (*Markdown) TextFields() []*string { return nil }

type Callout struct {
	Variant string `json:"variant,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (*Callout) BlockType() BlockType { return TypeCallout }
func (p *Callout) Shared() Payload { return &Callout{Variant: p.Variant} }
func (p *Callout) TextFields() []*string { return []*string{&p.Text} }

type Quote struct {
	Text   string `json:"text,omitempty"`
	Author string `json:"author,omitempty"`
	Role   string `json:"role,omitempty"`
	Source string `json:"source,omitempty"`
}

func (*Quote) BlockType() BlockType { return TypeQuote }
func (p *Quote) Shared() Payload { return &Quote{Author: p.Author, Source: p.Source} }
func (p *Quote) TextFields() []*string { return []*string{&p.Text, &p.Role} }

type AnimatedQuote struct {
	Quote
	Animation string `json:"animation,omitempty"`
}

func (*AnimatedQuote) BlockType() BlockType { return TypeAnimatedQuote }
func (p *AnimatedQuote) Shared() Payload {
	return &AnimatedQuote{Quote: Quote{Author: p.Author, Source: p.Source}, Animation: p.Animation}
}

// Statistic is one figure in a statistics or KPI block.
type Statistic struct {
	Label string `json:"label,omitempty"`
	Value string `json:"value,omitempty"`
	Unit  string `json:"unit,omitempty"`
	Trend string `json:"trend,omitempty"`
}

func sharedStats(in []Statistic) []Statistic {
	out := make([]Statistic, len(in))
	for i, s := range in {
		out[i] = Statistic{Value: s.Value, Unit: s.Unit, Trend: s.Trend}
	}
	return out
}

func statTexts(in []Statistic) []*string {
	out := make([]*string, len(in))
	for i := range in {
		out[i] = &in[i].Label
	}
	return out
}

type Statistics struct {
	Stats []Statistic `json:"stats,omitempty"`
}

func (*Statistics) BlockType() BlockType { return TypeStatistics }
func (p *Statistics) Shared() Payload { return &Statistics{Stats: sharedStats(p.Stats)} }
func (p *Statistics) TextFields() []*string { return statTexts(p.Stats) }

type AnimatedStatistics struct {
	Stats      []Statistic `json:"stats,omitempty"`
	DurationMS int         `json:"durationMs,omitempty"`
}

func (*AnimatedStatistics) BlockType() BlockType { return TypeAnimatedStatistics }
func (p *AnimatedStatistics) Shared() Payload {
	return &AnimatedStatistics{Stats: sharedStats(p.Stats), DurationMS: p.DurationMS}
}
func (p *AnimatedStatistics) TextFields() []*string { return statTexts(p.Stats) }

// TimelineEvent is one dated entry of a timeline.
type TimelineEvent struct {
	Year        string `json:"year,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func sharedEvents(in []TimelineEvent) []TimelineEvent {
	out := make([]TimelineEvent, len(in))
	for i, e := range in {
		out[i] = TimelineEvent{Year: e.Year}
	}
	return out
}

func eventTexts(in []TimelineEvent) []*string {
	out := make([]*string, 0, 2*len(in))
	for i := range in {
		out = append(out, &in[i].Title, &in[i].Description)
	}
	return out
}

type Timeline struct {
	Events []TimelineEvent `json:"events,omitempty"`
}

func (*Timeline) BlockType() BlockType { return TypeTimeline }
func (p *Timeline) Shared() Payload { return &Timeline{Events: sharedEvents(p.Events)} }
func (p *Timeline) TextFields() []*string { return eventTexts(p.Events) }

type ClimateTimeline struct {
	Events []TimelineEvent `json:"events,omitempty"`
	Metric string          `json:"metric,omitempty"`
}

func (*ClimateTimeline) BlockType() BlockType { return TypeClimateTimeline }
func (p *ClimateTimeline) Shared() Payload {
	return &ClimateTimeline{Events: sharedEvents(p.Events), Metric: p.Metric}
}
func (p *ClimateTimeline) TextFields() []*string { return eventTexts(p.Events) }

type Visualization struct {
	ChartType  string `json:"chartType,omitempty"`
	DataSource string `json:"dataSource,omitempty"`
	Caption    string `json:"caption,omitempty"`
}

func (*Visualization) BlockType() BlockType { return TypeVisualization }
func (p *Visualization) Shared() Payload {
	return &Visualization{ChartType: p.ChartType, DataSource: p.DataSource}
}
func (p *Visualization) TextFields() []*string { return []*string{&p.Caption} }

type ClimateDashboard struct {
	Metrics []string `json:"metrics,omitempty"`
	Region  string   `json:"region,omitempty"`
	Caption string   `json:"caption,omitempty"`
}

func (*ClimateDashboard) BlockType() BlockType { return TypeClimateDashboard }
func (p *ClimateDashboard) Shared() Payload {
	return &ClimateDashboard{Metrics: append([]string(nil), p.Metrics...), Region: p.Region}
}
func (p *ClimateDashboard) TextFields() []*string { return []*string{&p.Caption} }

type TemperatureSpiral struct {
	StartYear int    `json:"startYear,omitempty"`
	EndYear   int    `json:"endYear,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

func (*TemperatureSpiral) BlockType() BlockType { return TypeTemperatureSpiral }
func (p *TemperatureSpiral) Shared() Payload {
	return &TemperatureSpiral{StartYear: p.StartYear, EndYear: p.EndYear}
}
func (p *TemperatureSpiral) TextFields() []*string { return []*string{&p.Caption} }

// MapLayer is the initial state of one layer in an interactive map block.
type MapLayer struct {
	ID      string  `json:"id"`
	Visible bool    `json:"visible"`
	Opacity float64 `json:"opacity,omitempty"`
}

type InteractiveMap struct {
	Layers  []MapLayer `json:"layers,omitempty"`
	Center  [2]float64 `json:"center"`
	Zoom    float64    `json:"zoom,omitempty"`
	AutoFit bool       `json:"autoFit,omitempty"`
	Caption string     `json:"caption,omitempty"`
}

func (*InteractiveMap) BlockType() BlockType { return TypeInteractiveMap }
func (p *InteractiveMap) Shared() Payload {
	return &InteractiveMap{
		Layers:  append([]MapLayer(nil), p.Layers...),
		Center:  p.Center,
		Zoom:    p.Zoom,
		AutoFit: p.AutoFit,
	}
}
func (p *InteractiveMap) TextFields() []*string { return []*string{&p.Caption} }

type InteractiveCallout struct {
	Variant string `json:"variant,omitempty"`
	Text    string `json:"text,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

func (*InteractiveCallout) BlockType() BlockType { return TypeInteractiveCallout }
func (p *InteractiveCallout) Shared() Payload { return &InteractiveCallout{Variant: p.Variant} }
func (p *InteractiveCallout) TextFields() []*string { return []*string{&p.Text, &p.Detail} }

// Comparison is a before/after pair.
type Comparison struct {
	Label  string `json:"label,omitempty"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

type ImpactComparison struct {
	Items []Comparison `json:"items,omitempty"`
}

func (*ImpactComparison) BlockType() BlockType { return TypeImpactComparison }
func (p *ImpactComparison) Shared() Payload {
	items := make([]Comparison, len(p.Items))
	for i, c := range p.Items {
		items[i] = Comparison{Before: c.Before, After: c.After, Unit: c.Unit}
	}
	return &ImpactComparison{Items: items}
}
func (p *ImpactComparison) TextFields() []*string {
	out := make([]*string, len(p.Items))
	for i := range p.Items {
		out[i] = &p.Items[i].Label
	}
	return out
}

type KPIShowcase struct {
	KPIs []Statistic `json:"kpis,omitempty"`
}

func (*KPIShowcase) BlockType() BlockType { return TypeKPIShowcase }
func (p *KPIShowcase) Shared() Payload { return &KPIShowcase{KPIs: sharedStats(p.KPIs)} }
func (p *KPIShowcase) TextFields() []*string { return statTexts(p.KPIs) }

// InfographicSection is one panel of an infographic.
type InfographicSection struct {
	Icon  string `json:"icon,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

type ClimateInfographic struct {
	Sections []InfographicSection `json:"sections,omitempty"`
}

func (*ClimateInfographic) BlockType() BlockType { return TypeClimateInfographic }
func (p *ClimateInfographic) Shared() Payload {
	out := make([]InfographicSection, len(p.Sections))
	for i, s := range p.Sections {
		out[i] = InfographicSection{Icon: s.Icon}
	}
	return &ClimateInfographic{Sections: out}
}
func (p *ClimateInfographic) TextFields() []*string {
	out := make([]*string, 0, 2*len(p.Sections))
	for i := range p.Sections {
		out = append(out, &p.Sections[i].Title, &p.Sections[i].Text)
	}
	return out
}

type Image struct {
	URL     string `json:"url,omitempty"`
	Alt     string `json:"alt,omitempty"`
	Caption string `json:"caption,omitempty"`
	Credit  string `json:"credit,omitempty"`
}

func (*Image) BlockType() BlockType { return TypeImage }
func (p *Image) Shared() Payload { return &Image{URL: p.URL, Credit: p.Credit} }
func (p *Image) TextFields() []*string { return []*string{&p.Alt, &p.Caption} }

type Video struct {
	URL     string `json:"url,omitempty"`
	Poster  string `json:"poster,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func (*Video) BlockType() BlockType { return TypeVideo }
func (p *Video) Shared() Payload { return &Video{URL: p.URL, Poster: p.Poster} }
func (p *Video) TextFields() []*string { return []*string{&p.Caption} }

type Embed struct {
	URL     string `json:"url,omitempty"`
	Height  int    `json:"height,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func (*Embed) BlockType() BlockType { return TypeEmbed }
func (p *Embed) Shared() Payload { return &Embed{URL: p.URL, Height: p.Height} }
func (p *Embed) TextFields() []*string { return []*string{&p.Caption} }

type LayerComparison struct {
	LeftLayer  string `json:"leftLayer,omitempty"`
	RightLayer string `json:"rightLayer,omitempty"`
	LeftLabel  string `json:"leftLabel,omitempty"`
	RightLabel string `json:"rightLabel,omitempty"`
}

func (*LayerComparison) BlockType() BlockType { return TypeLayerComparison }
func (p *LayerComparison) Shared() Payload {
	return &LayerComparison{LeftLayer: p.LeftLayer, RightLayer: p.RightLayer}
}
func (p *LayerComparison) TextFields() []*string { return []*string{&p.LeftLabel, &p.RightLabel} }

type ScenarioComparison struct {
	Scenarios []string `json:"scenarios,omitempty"`
	Indicator string   `json:"indicator,omitempty"`
	Caption   string   `json:"caption,omitempty"`
}

func (*ScenarioComparison) BlockType() BlockType { return TypeScenarioComparison }
func (p *ScenarioComparison) Shared() Payload {
	return &ScenarioComparison{Scenarios: append([]string(nil), p.Scenarios...), Indicator: p.Indicator}
}
func (p *ScenarioComparison) TextFields() []*string { return []*string{&p.Caption} }

// References renders the story's numbered bibliography.
type References struct {
	Heading string `json:"heading,omitempty"`
}

func (*References) BlockType() BlockType { return TypeReferences }
func (*References) Shared() Payload      { return &References{} }
func (p *References) TextFields() []*string { return []*string{&p.Heading} }

type Divider struct {
	Style string `json:"style,omitempty"`
}

func (*Divider) BlockType() BlockType { return TypeDivider }
func (p *Divider) Shared() Payload { return &Divider{Style: p.Style} }
func (*Divider) TextFields() []*string { return nil }

type Hero struct {
	Subtitle        string `json:"subtitle,omitempty"`
	BackgroundImage string `json:"backgroundImage,omitempty"`
	CallToAction    string `json:"callToAction,omitempty"`
}

func (*Hero) BlockType() BlockType { return TypeHero }
func (p *Hero) Shared() Payload { return &Hero{BackgroundImage: p.BackgroundImage} }
func (p *Hero) TextFields() []*string { return []*string{&p.Subtitle, &p.CallToAction} }
