package overlay

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// WriteSVG writes the layer as an SVG sized to the image, with edges under
// points. Each point carries its index in data-index and a hover title.
func WriteSVG(w io.Writer, l *Layer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		l.Width, l.Height, l.Width, l.Height)

	fmt.Fprintf(bw, `<g class="edges" stroke="%s" stroke-width="%s" fill="none">`+"\n", EdgeStroke, ftoa(EdgeWidth))
	for _, e := range l.Edges {
		fmt.Fprintf(bw, `<line x1="%s" y1="%s" x2="%s" y2="%s"/>`+"\n",
			ftoa(e.X1), ftoa(e.Y1), ftoa(e.X2), ftoa(e.Y2))
	}
	bw.WriteString("</g>\n")

	bw.WriteString(`<g class="points">` + "\n")
	for _, p := range l.Points {
		class := "point"
		if p.Selected {
			class = "point selected"
		}
		fmt.Fprintf(bw, `<circle class="%s" data-index="%d" cx="%s" cy="%s" r="%s" fill="%s" stroke="%s" opacity="%s"><title>Index: %d</title></circle>`+"\n",
			class, p.Index, ftoa(p.X), ftoa(p.Y), ftoa(p.Radius), p.Fill(), p.Stroke(), ftoa(p.Opacity()), p.Index)
	}
	bw.WriteString("</g>\n</svg>\n")

	return bw.Flush()
}
