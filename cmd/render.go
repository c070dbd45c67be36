// cmd/render.go
package cmd

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/oksome/servo/internal/compositor"
	"github.com/oksome/servo/internal/dom"
	"github.com/oksome/servo/internal/geom"
	"github.com/oksome/servo/internal/gfx/font"
	"github.com/oksome/servo/internal/layout"
	"github.com/oksome/servo/internal/layout/layoutapi"
	"github.com/oksome/servo/internal/msg"
	"github.com/oksome/servo/internal/observability"
	"github.com/oksome/servo/internal/script"
)

var (
	renderSelector string
	renderFragment string
	renderBoxes    bool
	renderClickX   float32
	renderClickY   float32
	renderClickSet bool
)

var renderCmd = &cobra.Command{
	Use:   "render <file.html>",
	Short: "Lay out an HTML file and answer geometry queries against it.",
	Long: `Render parses the given HTML file, runs it through the layout
pipeline at the configured viewport, and prints the geometry the flags ask
for: the content box of a node picked by XPath or fragment id, or the node
under a click point.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		renderClickSet = cmd.Flags().Changed("click-x") || cmd.Flags().Changed("click-y")
		return runRender(args[0])
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderSelector, "selector", "", "XPath expression picking the node to query")
	renderCmd.Flags().StringVar(&renderFragment, "fragment", "", "fragment identifier picking the node to query")
	renderCmd.Flags().BoolVar(&renderBoxes, "boxes", false, "print every content box of the node, not just the union")
	renderCmd.Flags().Float32Var(&renderClickX, "click-x", 0, "x coordinate of a hit test, in CSS px")
	renderCmd.Flags().Float32Var(&renderClickY, "click-y", 0, "y coordinate of a hit test, in CSS px")

	rootCmd.AddCommand(renderCmd)
}

func runRender(path string) error {
	logger := observability.GetLogger().With(
		zap.String("session_id", uuid.NewString()))

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving document path: %w", err)
	}
	docURL := &url.URL{Scheme: "file", Path: abs}

	doc, err := dom.ParseDocument(f, docURL)
	if err != nil {
		return fmt.Errorf("parsing document: %w", err)
	}

	windowSize := msg.WindowSizeData{
		InitialViewport: geom.Size2D{
			Width:  cfg.Viewport.Width,
			Height: cfg.Viewport.Height,
		},
		DevicePixelRatio: cfg.Viewport.DevicePixelRatio,
	}

	const pipeline = msg.PipelineID(1)
	layoutTask := layout.NewTask(pipeline, font.NewTableResolver(), logger)

	var group errgroup.Group
	group.Go(layoutTask.Run)

	page := script.NewPage(pipeline, nil, layoutTask.Chan(), windowSize, logger)

	// This goroutine plays the script task for the one-shot render, so it
	// may touch the page without further synchronization.
	comp := compositor.NewHeadless(logger)
	control := make(chan msg.ScriptMsg, 16)
	page.SetFrame(&script.Frame{
		Document: doc,
		Window:   dom.NewWindow(control, comp),
	})
	page.Damage()

	// Initial layout of the freshly parsed document.
	page.FlushLayout(layoutapi.ReflowQueryType{})
	page.JoinLayout()

	if err := printQueries(page, doc); err != nil {
		return err
	}

	page.LayoutChan() <- layoutapi.ExitMsg{}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("layout task: %w", err)
	}

	logger.Debug("render finished",
		zap.Int("avoided_reflows", page.AvoidedReflows()),
		zap.Uint32("reflows", page.LastReflowID()))
	return nil
}

// printQueries answers the geometry questions the flags selected against an
// already laid out page.
func printQueries(page *script.Page, doc *dom.Document) error {
	if node := pickNode(page, doc); node != nil {
		if renderBoxes {
			for _, r := range page.ContentBoxesQuery(node) {
				printRect(r)
			}
		} else {
			printRect(page.ContentBoxQuery(node))
		}
	} else if renderSelector != "" || renderFragment != "" {
		return fmt.Errorf("no node matched the selection")
	}

	if renderClickSet {
		point := geom.Point2D{X: renderClickX, Y: renderClickY}
		if hit := page.HitTest(point); hit != nil {
			fmt.Printf("hit: <%s>\n", nodeName(hit))
		} else {
			fmt.Println("hit: none")
		}
	}
	return nil
}

func pickNode(page *script.Page, doc *dom.Document) *html.Node {
	switch {
	case renderSelector != "":
		return doc.FindOne(renderSelector)
	case renderFragment != "":
		return page.FindFragmentNode(renderFragment)
	default:
		return nil
	}
}

func printRect(r geom.Rect) {
	fmt.Printf("box: x=%g y=%g width=%g height=%g\n",
		r.X.ToPx(), r.Y.ToPx(), r.Width.ToPx(), r.Height.ToPx())
}

func nodeName(n *html.Node) string {
	if n.Type == html.ElementNode {
		return n.Data
	}
	return "#text"
}
