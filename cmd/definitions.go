package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/ocsearch/ocsearch/pkg/config"
	"github.com/ocsearch/ocsearch/pkg/definitions"
)

// Define styles using lipgloss
var (
	defTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	defHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	defMetaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	defBlockStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1).
			Margin(0, 0, 1, 2)
)

// DefinitionsCommand creates the definitions command
func DefinitionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "definitions",
		Usage: "List the loaded search definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "lang",
				Usage: "Language for labels (en or fr)",
				Value: "en",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return listDefinitions(ctx, c.String("config"), c.String("lang"))
		},
	}
}

func listDefinitions(ctx context.Context, configPath, langCode string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lang, ok := definitions.ParseLanguage(langCode)
	if !ok {
		return fmt.Errorf("unknown language %q", langCode)
	}

	store, err := definitions.OpenStore(cfg.DefinitionsDB)
	if err != nil {
		return fmt.Errorf("opening definitions store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close definitions store: %v\n", err)
		}
	}()

	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading definitions: %w", err)
	}

	ids := snap.SearchIDs()
	sort.Strings(ids)

	fmt.Println(defTitleStyle.Render(fmt.Sprintf("Search definitions (%d)", len(ids))))

	for _, id := range ids {
		sc, ok := snap.Lookup(id)
		if !ok {
			continue
		}
		def := sc.Definition

		var b strings.Builder
		b.WriteString(defHeaderStyle.Render(fmt.Sprintf("%s - %s", id, def.Label(lang))))
		b.WriteString("\n")
		if desc := def.Description(lang); desc != "" {
			b.WriteString(desc)
			b.WriteString("\n")
		}
		b.WriteString(defMetaStyle.Render(fmt.Sprintf(
			"core=%s page_size=%d fields=%d facets=%d sorts=%d mlt=%v",
			def.CoreName,
			def.PageSize,
			len(sc.Fields),
			len(sc.FacetFields[lang]),
			len(sc.SortOptions[lang]),
			def.MLTEnabled,
		)))

		fmt.Println(defBlockStyle.Render(b.String()))
	}

	return nil
}
