package tags

import "github.com/yohamta/donburi"

var (
	Owned  = donburi.NewTag().SetName("Owned")
	Remote = donburi.NewTag().SetName("Remote")
)
