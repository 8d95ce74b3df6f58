// Package slides renders slide outlines into PNG images and a PDF deck.
package slides

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/sync/errgroup"
)

const (
	MinSlides  = 3
	MaxSlides  = 8
	maxBullets = 6
)

// Slide is one outline entry produced by the language model.
type Slide struct {
	Title       string   `json:"title"`
	Bullets     []string `json:"bullets"`
	ImagePrompt string   `json:"image_prompt"`
}

// NormalizeOutline trims entries, drops untitled slides and caps the deck at MaxSlides.
func NormalizeOutline(in []Slide) ([]Slide, error) {
	out := make([]Slide, 0, len(in))
	for _, s := range in {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			continue
		}
		bullets := make([]string, 0, len(s.Bullets))
		for _, b := range s.Bullets {
			if b = strings.TrimSpace(b); b != "" {
				bullets = append(bullets, b)
			}
		}
		if len(bullets) > maxBullets {
			bullets = bullets[:maxBullets]
		}
		s.Bullets = bullets
		s.ImagePrompt = strings.TrimSpace(s.ImagePrompt)
		out = append(out, s)
		if len(out) == MaxSlides {
			break
		}
	}
	if len(out) < MinSlides {
		return nil, fmt.Errorf("outline has %d usable slides, need at least %d", len(out), MinSlides)
	}
	return out, nil
}

// Options configure rendering.
type Options struct {
	Width       int
	Height      int
	Concurrency int
	FontPath    string
}

// Renderer draws slides. Truetype faces are not safe for concurrent use,
// so a face is built per slide from the shared parsed font.
type Renderer struct {
	width       int
	height      int
	concurrency int
	font        *truetype.Font
}

// NewRenderer loads the optional TTF font. Without one the basic bitmap face is used.
func NewRenderer(opts Options) (*Renderer, error) {
	r := &Renderer{
		width:       opts.Width,
		height:      opts.Height,
		concurrency: opts.Concurrency,
	}
	if r.width <= 0 {
		r.width = 1280
	}
	if r.height <= 0 {
		r.height = 720
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	if strings.TrimSpace(opts.FontPath) != "" {
		raw, err := os.ReadFile(opts.FontPath)
		if err != nil {
			return nil, fmt.Errorf("read slide font: %w", err)
		}
		parsed, err := truetype.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse slide font: %w", err)
		}
		r.font = parsed
	}
	return r, nil
}

func (r *Renderer) face(size float64) font.Face {
	if r.font == nil {
		return basicfont.Face7x13
	}
	return truetype.NewFace(r.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

var (
	background = color.RGBA{R: 248, G: 250, B: 252, A: 255}
	banner     = color.RGBA{R: 37, G: 99, B: 235, A: 255}
	ink        = color.RGBA{R: 30, G: 41, B: 59, A: 255}
	muted      = color.RGBA{R: 100, G: 116, B: 139, A: 255}
)

// RenderSlide draws one slide as PNG bytes.
func (r *Renderer) RenderSlide(index, total int, s Slide) ([]byte, error) {
	w, h := float64(r.width), float64(r.height)
	margin := w * 0.06
	bannerHeight := h * 0.2

	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(background)
	dc.Clear()

	dc.SetColor(banner)
	dc.DrawRectangle(0, 0, w, bannerHeight)
	dc.Fill()

	dc.SetFontFace(r.face(h * 0.07))
	dc.SetColor(color.White)
	dc.DrawStringWrapped(s.Title, margin, bannerHeight/2, 0, 0.5, w-2*margin, 1.2, gg.AlignLeft)

	dc.SetFontFace(r.face(h * 0.045))
	dc.SetColor(ink)
	y := bannerHeight + h*0.08
	lineHeight := dc.FontHeight() * 1.5
	for _, bullet := range s.Bullets {
		lines := dc.WordWrap(bullet, w-2*margin-30)
		for i, line := range lines {
			prefix := "   "
			if i == 0 {
				prefix = "•  "
				if r.font == nil {
					prefix = "-  "
				}
			}
			dc.DrawString(prefix+line, margin, y)
			y += lineHeight
		}
		y += lineHeight * 0.3
	}

	dc.SetFontFace(r.face(h * 0.03))
	dc.SetColor(muted)
	if s.ImagePrompt != "" {
		dc.DrawStringWrapped("Visual: "+s.ImagePrompt, margin, h-h*0.1, 0, 1, w*0.7, 1.2, gg.AlignLeft)
	}
	dc.DrawStringAnchored(fmt.Sprintf("%d / %d", index+1, total), w-margin, h-h*0.05, 1, 0)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode slide %d: %w", index+1, err)
	}
	return buf.Bytes(), nil
}

// RenderAll renders every slide with bounded parallelism. Output order matches input order.
func (r *Renderer) RenderAll(ctx context.Context, deck []Slide) ([][]byte, error) {
	images := make([][]byte, len(deck))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i := range deck {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := r.RenderSlide(i, len(deck), deck[i])
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// AssemblePDF places one PNG per page at the renderer's aspect ratio.
func (r *Renderer) AssemblePDF(title string, images [][]byte) ([]byte, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("no slide images to assemble")
	}
	w, h := float64(r.width), float64(r.height)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetTitle(title, true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	for i, img := range images {
		name := fmt.Sprintf("slide_%d", i+1)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(img))
		pdf.AddPage()
		pdf.ImageOptions(name, 0, 0, w, h, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("assemble slide pdf: %w", err)
	}
	return buf.Bytes(), nil
}
