package transform

import (
	"strings"

	"github.com/doubleverify/ananke/internal/model"
)

func init() {
	Register("megaport", Megaport)
}

// Megaport strips the bEnd VLAN field from VXC product writes, ported
// from sample/transforms/megaport.py: ananke doesn't own the b-end of a
// Megaport VXC, so sending our own view of it back can clobber the
// other party's config.
func Megaport(pack *model.ConfigPack) *model.ConfigPack {
	if strings.HasPrefix(pack.Path, "https://api-staging.megaport.com/v3/product/vxc") {
		delete(pack.Content, "bEndVlan")
	}
	return pack
}
