package bomcmd

import "github.com/spinnaker/buildtool/internal/bom"

var LogBomDiff = logBomDiff

func ReplaceBomDiffRenderer(renderer func(*bom.Document, *bom.Document) (string, error)) func() {
	previous := renderBomDiff
	renderBomDiff = renderer
	return func() { renderBomDiff = previous }
}
