package cli

import (
	"context"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rxmine/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)
	fs.String("write", "", "Also write the effective config to `path`")

	return &Command{
		Flags: fs,
		Usage: "print-config [--write <path>]",
		Short: "Show resolved configuration",
		Examples: []string{
			"rxmine print-config",
			"rxmine --debug-level RNDX=debug print-config --write rxmine.json",
		},
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			formatted, err := config.Format(a.cfg)
			if err != nil {
				return err
			}

			o.Println(formatted)
			o.Println("")
			o.Println("# sources")

			sources := a.cfg.Sources

			if sources.Global == "" && sources.Project == "" {
				o.Println("(defaults only)")
			}

			if sources.Global != "" {
				o.Println("global_config=" + sources.Global)
			}

			if sources.Project != "" {
				o.Println("project_config=" + sources.Project)
			}

			path, _ := fs.GetString("write")
			if path == "" {
				return nil
			}

			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.EffectiveCwd, path)
			}

			err = config.Save(path, a.cfg)
			if err != nil {
				return err
			}

			o.Println("wrote " + path)

			return nil
		},
	}
}
