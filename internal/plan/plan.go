package plan

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"github.com/sempervent/streaming-parquet/internal/config"
	"github.com/sempervent/streaming-parquet/internal/format"
	"github.com/sempervent/streaming-parquet/internal/format/csvio"
	"github.com/sempervent/streaming-parquet/internal/format/parquetio"
	"github.com/sempervent/streaming-parquet/internal/tabular"
)

// Input is one resolved input file with its probed native schema.
type Input struct {
	Path   string         `json:"path"`
	Format format.Kind    `json:"format"`
	Bytes  int64          `json:"bytes"`
	Rows   int64          `json:"rows,omitempty"` // exact for parquet, 0 when unknown
	Schema tabular.Schema `json:"schema"`
}

// Plan freezes everything the pipeline needs: the ordered input list, the
// unified output schema, per-input mappings, and a fingerprint binding a
// checkpoint to this exact plan.
type Plan struct {
	Inputs      []Input        `json:"inputs"`
	Unified     tabular.Schema `json:"unified_schema"`
	OutFormat   format.Kind    `json:"out_format"`
	Compression string         `json:"compression"`
	Fingerprint string         `json:"fingerprint"`

	// Mappings[i] reshapes Inputs[i] rows into the unified layout. Derived
	// state, excluded from rendering.
	Mappings []tabular.Mapping `json:"-"`
}

// Build resolves, probes, and unifies. It reads input headers and samples
// only; the output path is never touched, so plan mode is side-effect free.
func Build(cfg config.Config) (*Plan, error) {
	paths, err := Discover(cfg.Inputs, cfg.NoRecursive)
	if err != nil {
		return nil, err
	}

	csvOpt := csvio.Options{
		Delimiter: cfg.Delimiter,
		NoHeader:  cfg.NoHeader,
		Encoding:  cfg.Encoding,
		NAValues:  cfg.NAValues,
	}

	p := &Plan{
		Inputs:      make([]Input, 0, len(paths)),
		Compression: cfg.Compression,
		OutFormat:   format.DetectOutput(outFormat(cfg), cfg.Output),
	}

	for _, path := range paths {
		kind, err := format.Detect(path)
		if err != nil {
			return nil, &InputResolutionError{Pattern: path, Err: err}
		}
		in := Input{Path: path, Format: kind}
		if st, serr := os.Stat(path); serr == nil {
			in.Bytes = st.Size()
		}
		switch kind {
		case format.Parquet:
			s, rows, perr := parquetio.ProbeSchema(path)
			if perr != nil {
				return nil, perr
			}
			in.Schema, in.Rows = s, rows
		default:
			s, perr := csvio.ProbeSchema(path, cfg.InferRows, csvOpt)
			if perr != nil {
				return nil, fmt.Errorf("probe %s: %w", path, perr)
			}
			in.Schema = s
		}
		in.Schema.NormalizeKindNames()
		p.Inputs = append(p.Inputs, in)
	}

	opts := tabular.UnifyOptions{
		Renames:   cfg.Renames,
		Columns:   cfg.Columns,
		Stringify: cfg.StringifyConflicts,
	}
	schemas := make([]tabular.Schema, len(p.Inputs))
	for i := range p.Inputs {
		schemas[i] = p.Inputs[i].Schema
	}
	unified, err := tabular.Unify(schemas, opts)
	if err != nil {
		return nil, err
	}
	unified.NormalizeKindNames()
	p.Unified = unified

	p.Mappings = make([]tabular.Mapping, len(p.Inputs))
	for i := range p.Inputs {
		p.Mappings[i] = tabular.MapTo(p.Inputs[i].Schema, unified, opts)
	}

	p.Fingerprint = fingerprint(p, cfg)
	return p, nil
}

func outFormat(cfg config.Config) string {
	if cfg.OutFormat == config.FormatAuto {
		return ""
	}
	return cfg.OutFormat
}

// fingerprint hashes the parts of the plan and config that determine output
// content. A checkpoint recorded under one fingerprint refuses to resume a run
// whose inputs or settings differ.
func fingerprint(p *Plan, cfg config.Config) string {
	type inputID struct {
		Path   string `json:"path"`
		Bytes  int64  `json:"bytes"`
		Schema string `json:"schema"`
	}
	ids := make([]inputID, len(p.Inputs))
	for i, in := range p.Inputs {
		ids[i] = inputID{Path: in.Path, Bytes: in.Bytes, Schema: in.Schema.String()}
	}
	doc := struct {
		Inputs      []inputID `json:"inputs"`
		Unified     string    `json:"unified"`
		Output      string    `json:"output"`
		OutFormat   string    `json:"out_format"`
		Compression string    `json:"compression"`
		RollBytes   int64     `json:"roll_bytes"`
		RollRows    int64     `json:"roll_rows"`
	}{
		Inputs:      ids,
		Unified:     p.Unified.String(),
		Output:      cfg.Output,
		OutFormat:   string(p.OutFormat),
		Compression: cfg.Compression,
		RollBytes:   cfg.RollBytes,
		RollRows:    cfg.RollRows,
	}
	raw, _ := json.Marshal(doc)
	sum := xxh3.Hash128(raw).Bytes()
	return fmt.Sprintf("%x", sum)
}

// Render writes the plan as indented JSON.
func (p *Plan) Render(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// TotalBytes sums the input file sizes.
func (p *Plan) TotalBytes() int64 {
	var n int64
	for _, in := range p.Inputs {
		n += in.Bytes
	}
	return n
}
