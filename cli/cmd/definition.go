package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/sliderule/cli/render"
	"github.com/pithecene-io/sliderule/cli/tui"
	"github.com/pithecene-io/sliderule/iox"
	"github.com/pithecene-io/sliderule/recdef"
)

// DefinitionResponse is the response for the definition command.
type DefinitionResponse struct {
	Type   string               `json:"type" yaml:"type"`
	Size   int                  `json:"size" yaml:"size"`
	Fields []recdef.FieldLayout `json:"fields" yaml:"fields"`
}

// FieldResponse describes one field of a record type.
type FieldResponse struct {
	RecordType string `json:"record_type" yaml:"record_type"`
	Field      string `json:"field" yaml:"field"`
	// Primitive is empty for nested or pointer fields.
	Primitive string `json:"primitive" yaml:"primitive"`
	Size      int    `json:"size" yaml:"size"`
	Format    string `json:"format" yaml:"format"`
	GoType    string `json:"go_type" yaml:"go_type"`
}

// DefinitionCommand returns the definition command.
func DefinitionCommand() *cli.Command {
	return &cli.Command{
		Name:      "definition",
		Usage:     "Show the definition of a record type, or one of its fields",
		ArgsUsage: "<record-type> [field]",
		Flags:     joinFlags(OutputFlags(), ConnectionFlags()),
		Action:    definitionAction,
	}
}

func definitionAction(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("definition requires <record-type> and an optional [field]", exitConfigError)
	}
	recordType := c.Args().Get(0)
	field := c.Args().Get(1)

	if c.Bool("tui") && field != "" {
		return cli.Exit("--tui is not supported for a single field", exitConfigError)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	cfg, err := loadSettings(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	env, err := newEnvironment(ctx, cfg, false)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}
	defer iox.DiscardErr(env.Close)

	if field != "" {
		p, ok, err := env.client.FieldPrimitive(ctx, recordType, field)
		if err != nil {
			return requestExit(err)
		}
		resp := FieldResponse{RecordType: recordType, Field: field}
		if ok {
			resp.Primitive = p.Name
			resp.Size = p.Size
			resp.Format = p.Format.String()
			resp.GoType = p.GoType
		}
		return r.Render(resp)
	}

	def, err := env.client.Definition(ctx, recordType)
	if err != nil {
		return requestExit(err)
	}
	if c.Bool("tui") {
		return tui.Run(tui.ViewDefinition, def)
	}
	return r.Render(newDefinitionResponse(def))
}

func newDefinitionResponse(def *recdef.Definition) DefinitionResponse {
	fields := make([]recdef.FieldLayout, len(def.Fields))
	for i, f := range def.Fields {
		fields[i] = f.FieldLayout
	}
	return DefinitionResponse{Type: def.Type, Size: def.Size, Fields: fields}
}
