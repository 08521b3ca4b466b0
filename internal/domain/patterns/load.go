package patterns

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultDatePattern    = `^(\d{2}\.\d{2}\.\d{4})`
	defaultTimePattern    = `^(?:в\s*)?(\d{2}:\d{2})`
	defaultDateTimeLayout = "02.01.2006 15:04"
	defaultCurrency       = "₽"
)

type rawFile struct {
	// pdf_types is decoded as a node so declaration order survives.
	PDFTypes          yaml.Node      `yaml:"pdf_types"`
	Categories        []rawCategory  `yaml:"categories"`
	SpecialConditions []rawCondition `yaml:"special_conditions"`
}

type rawType struct {
	Family                  string      `yaml:"family"`
	Detect                  []string    `yaml:"detect"`
	Columns                 []int       `yaml:"columns"`
	ColumnEdges             []float64   `yaml:"column_edges"`
	StartMarker             string      `yaml:"start_marker"`
	EndMarker               string      `yaml:"end_marker"`
	SkipLines               []string    `yaml:"skip_lines"`
	DatePattern             string      `yaml:"date_pattern"`
	TimePattern             string      `yaml:"time_pattern"`
	MergeSplitHeader        bool        `yaml:"merge_split_header"`
	DeleteRows              rawDeletion `yaml:"delete_rows"`
	Fields                  rawFields   `yaml:"fields"`
	Stream                  rawStream   `yaml:"stream"`
	DateTimeLayout          string      `yaml:"datetime_layout"`
	Currency                string      `yaml:"currency"`
	InvertSign              bool        `yaml:"invert_sign"`
	DefaultCashSource       string      `yaml:"default_cash_source"`
	DefaultTransactionClass string      `yaml:"default_transaction_class"`
}

type rawDeletion struct {
	First   int   `yaml:"first"`
	Last    int   `yaml:"last"`
	Indices []int `yaml:"indices"`
}

type rawFields struct {
	Date        *int `yaml:"date"`
	Time        *int `yaml:"time"`
	Amount      *int `yaml:"amount"`
	Description *int `yaml:"description"`
	Card        *int `yaml:"card"`
}

type rawStream struct {
	TimeRequired       bool  `yaml:"time_required"`
	SkipAfterDate      int   `yaml:"skip_after_date"`
	RecordLines        int   `yaml:"record_lines"`
	AmountOffset       *int  `yaml:"amount_offset"`
	DescriptionOffsets []int `yaml:"description_offsets"`
	CardOffset         *int  `yaml:"card_offset"`
}

type rawCategory struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
}

type rawCondition struct {
	Trigger string      `yaml:"trigger"`
	Actions []rawAction `yaml:"actions"`
}

type rawAction struct {
	Field   string `yaml:"field"`
	Value   string `yaml:"value"`
	Comment string `yaml:"comment"`
}

// Load reads and compiles a rule file. Any error is a *ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return Parse(data)
}

// Parse compiles a rule document.
func Parse(data []byte) (*Config, error) {
	var raw rawFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Err: err}
	}

	cfg := &Config{}

	if raw.PDFTypes.Kind != yaml.MappingNode || len(raw.PDFTypes.Content) == 0 {
		return nil, configErr("pdf_types", "must be a non-empty mapping of type tag to layout")
	}
	for i := 0; i+1 < len(raw.PDFTypes.Content); i += 2 {
		tag := strings.TrimSpace(raw.PDFTypes.Content[i].Value)
		path := "pdf_types." + tag
		if tag == "" {
			return nil, configErr("pdf_types", "empty type tag")
		}
		if _, dup := cfg.Type(tag); dup {
			return nil, configErr(path, "declared twice")
		}
		var rt rawType
		if err := raw.PDFTypes.Content[i+1].Decode(&rt); err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		layout, err := compileType(tag, rt)
		if err != nil {
			return nil, err
		}
		cfg.Types = append(cfg.Types, layout)
	}

	for i, rc := range raw.Categories {
		path := fmt.Sprintf("categories[%d]", i)
		if strings.TrimSpace(rc.Name) == "" {
			return nil, configErr(path, "name is required")
		}
		if len(rc.Patterns) == 0 {
			return nil, configErr(path, "category %q has no patterns", rc.Name)
		}
		cat := Category{Name: rc.Name}
		for j, p := range rc.Patterns {
			pattern, err := compilePattern(p)
			if err != nil {
				return nil, &ConfigError{Path: fmt.Sprintf("%s.patterns[%d]", path, j), Err: err}
			}
			cat.Patterns = append(cat.Patterns, pattern)
		}
		cfg.Categories = append(cfg.Categories, cat)
	}

	for i, rc := range raw.SpecialConditions {
		path := fmt.Sprintf("special_conditions[%d]", i)
		trigger, err := compileRegex(rc.Trigger, true)
		if err != nil || trigger == nil {
			return nil, configErr(path, "invalid trigger %q", rc.Trigger)
		}
		cond := Condition{Trigger: trigger}
		for j, ra := range rc.Actions {
			apath := fmt.Sprintf("%s.actions[%d]", path, j)
			field, ok := ParseField(ra.Field)
			if !ok {
				return nil, configErr(apath, "unknown field %q", ra.Field)
			}
			value, err := ParseExpr(ra.Value)
			if err != nil {
				return nil, &ConfigError{Path: apath, Err: err}
			}
			cond.Actions = append(cond.Actions, Action{Field: field, Value: value, Comment: ra.Comment})
		}
		if len(cond.Actions) == 0 {
			return nil, configErr(path, "no actions")
		}
		cfg.SpecialConditions = append(cfg.SpecialConditions, cond)
	}

	return cfg, nil
}

func compileType(tag string, rt rawType) (*TypeLayout, error) {
	path := "pdf_types." + tag
	layout := &TypeLayout{
		Tag:                     tag,
		Family:                  Family(rt.Family),
		Columns:                 rt.Columns,
		ColumnEdges:             rt.ColumnEdges,
		MergeSplitHeader:        rt.MergeSplitHeader,
		DeleteRows:              RowDeletion(rt.DeleteRows),
		DateTimeLayout:          rt.DateTimeLayout,
		Currency:                rt.Currency,
		InvertSign:              rt.InvertSign,
		DefaultCashSource:       rt.DefaultCashSource,
		DefaultTransactionClass: rt.DefaultTransactionClass,
	}
	if layout.Family == "" {
		layout.Family = FamilyGrid
	}
	if layout.DateTimeLayout == "" {
		layout.DateTimeLayout = defaultDateTimeLayout
	}
	if layout.Currency == "" {
		layout.Currency = defaultCurrency
	}

	if len(rt.Detect) == 0 {
		return nil, configErr(path+".detect", "at least one detection pattern is required")
	}
	for _, d := range rt.Detect {
		re, err := compileRegex(d, true)
		if err != nil || re == nil {
			return nil, configErr(path+".detect", "invalid pattern %q", d)
		}
		layout.Detect = append(layout.Detect, re)
	}

	var err error
	if layout.StartMarker, err = compileRegex(rt.StartMarker, false); err != nil {
		return nil, &ConfigError{Path: path + ".start_marker", Err: err}
	}
	if layout.EndMarker, err = compileRegex(rt.EndMarker, false); err != nil {
		return nil, &ConfigError{Path: path + ".end_marker", Err: err}
	}
	for _, s := range rt.SkipLines {
		re, err := compileRegex(s, false)
		if err != nil || re == nil {
			return nil, configErr(path+".skip_lines", "invalid pattern %q", s)
		}
		layout.SkipLines = append(layout.SkipLines, re)
	}
	datePattern := rt.DatePattern
	if datePattern == "" {
		datePattern = defaultDatePattern
	}
	if layout.DatePattern, err = regexp.Compile(datePattern); err != nil {
		return nil, &ConfigError{Path: path + ".date_pattern", Err: err}
	}
	timePattern := rt.TimePattern
	if timePattern == "" {
		timePattern = defaultTimePattern
	}
	if layout.TimePattern, err = regexp.Compile(timePattern); err != nil {
		return nil, &ConfigError{Path: path + ".time_pattern", Err: err}
	}
	if d := layout.DeleteRows; d.First < 0 || d.Last < 0 {
		return nil, configErr(path+".delete_rows", "counts must not be negative")
	}

	switch layout.Family {
	case FamilyGrid:
		if err := compileGridFields(path, rt, layout); err != nil {
			return nil, err
		}
	case FamilyStream, FamilyStreamDescriptionFirst:
		if err := compileStream(path, rt.Stream, layout); err != nil {
			return nil, err
		}
	default:
		return nil, configErr(path+".family", "unknown family %q", rt.Family)
	}

	return layout, nil
}

func compileGridFields(path string, rt rawType, layout *TypeLayout) error {
	idx := func(p *int) int {
		if p == nil {
			return -1
		}
		return *p
	}
	layout.Fields = GridFields{
		Date:        idx(rt.Fields.Date),
		Time:        idx(rt.Fields.Time),
		Amount:      idx(rt.Fields.Amount),
		Description: idx(rt.Fields.Description),
		Card:        idx(rt.Fields.Card),
	}
	if layout.Fields.Date < 0 || layout.Fields.Amount < 0 || layout.Fields.Description < 0 {
		return configErr(path+".fields", "date, amount and description columns are required")
	}
	if layout.StartMarker == nil {
		return configErr(path+".start_marker", "required for grid layouts")
	}
	width := len(layout.Columns)
	if width == 0 {
		return nil
	}
	for name, v := range map[string]int{
		"date": layout.Fields.Date, "time": layout.Fields.Time, "amount": layout.Fields.Amount,
		"description": layout.Fields.Description, "card": layout.Fields.Card,
	} {
		if v >= width {
			return configErr(path+".fields."+name, "column %d outside the %d kept columns", v, width)
		}
	}
	return nil
}

func compileStream(path string, rs rawStream, layout *TypeLayout) error {
	path += ".stream"
	s := StreamLayout{
		TimeRequired:       rs.TimeRequired,
		SkipAfterDate:      rs.SkipAfterDate,
		RecordLines:        rs.RecordLines,
		DescriptionOffsets: rs.DescriptionOffsets,
		CardOffset:         -1,
	}
	if rs.AmountOffset == nil {
		return configErr(path+".amount_offset", "required")
	}
	s.AmountOffset = *rs.AmountOffset
	if rs.CardOffset != nil {
		s.CardOffset = *rs.CardOffset
	}
	if s.SkipAfterDate < 0 {
		return configErr(path+".skip_after_date", "must not be negative")
	}

	// The record window defaults to the smallest one covering every offset.
	maxOffset := s.AmountOffset
	for _, o := range append([]int{s.CardOffset}, s.DescriptionOffsets...) {
		if o > maxOffset {
			maxOffset = o
		}
	}
	if s.RecordLines == 0 {
		s.RecordLines = maxOffset + 1
	}
	if s.AmountOffset < 0 || maxOffset >= s.RecordLines {
		return configErr(path, "offsets must fall inside a %d-line record window", s.RecordLines)
	}
	for _, o := range s.DescriptionOffsets {
		if o < 0 {
			return configErr(path+".description_offsets", "must not be negative")
		}
	}
	if layout.Family == FamilyStream && len(s.DescriptionOffsets) == 0 {
		return configErr(path+".description_offsets", "required for the stream family")
	}

	layout.Stream = s
	return nil
}

func compilePattern(p string) (Pattern, error) {
	if strings.TrimSpace(p) == "" {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	if regexp.QuoteMeta(p) == p {
		return Pattern{Source: p, Literal: true}, nil
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Source: p, Regex: re}, nil
}

// compileRegex returns nil for an empty expression.
func compileRegex(expr string, caseInsensitive bool) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, nil
	}
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	return regexp.Compile(expr)
}
