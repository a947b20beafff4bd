package labels

var rugdLabels = []Label{
	{ID: 0, Name: "void", Category: "void", CategoryID: 0, HasInstances: false, IgnoreInEval: true, Color: Color{0, 0, 0}},
	{ID: 1, Name: "dirt", Category: "drivable", CategoryID: 1, Color: Color{108, 64, 20}},
	{ID: 2, Name: "sand", Category: "drivable", CategoryID: 1, Color: Color{255, 229, 204}},
	{ID: 3, Name: "grass", Category: "drivable", CategoryID: 1, Color: Color{0, 102, 0}},
	{ID: 4, Name: "tree", Category: "obstacle", CategoryID: 2, Color: Color{0, 255, 0}},
	{ID: 5, Name: "pole", Category: "obstacle", CategoryID: 2, HasInstances: true, Color: Color{0, 153, 153}},
	{ID: 6, Name: "water", Category: "obstacle", CategoryID: 2, Color: Color{0, 128, 255}},
	{ID: 7, Name: "sky", Category: "sky", CategoryID: 3, Color: Color{0, 0, 255}},
	{ID: 8, Name: "vehicle", Category: "vehicle", CategoryID: 4, HasInstances: true, Color: Color{255, 255, 0}},
	{ID: 9, Name: "generic-object", Category: "object", CategoryID: 5, Color: Color{255, 0, 127}},
	{ID: 10, Name: "asphalt", Category: "drivable", CategoryID: 1, Color: Color{64, 64, 64}},
	{ID: 11, Name: "gravel", Category: "drivable", CategoryID: 1, Color: Color{255, 128, 0}},
	{ID: 12, Name: "building", Category: "construction", CategoryID: 6, Color: Color{255, 0, 0}},
	{ID: 13, Name: "mulch", Category: "drivable", CategoryID: 1, Color: Color{153, 76, 0}},
	{ID: 14, Name: "rock-bed", Category: "obstacle", CategoryID: 2, Color: Color{102, 102, 0}},
	{ID: 15, Name: "log", Category: "obstacle", CategoryID: 2, HasInstances: true, Color: Color{102, 0, 0}},
	{ID: 16, Name: "bicycle", Category: "vehicle", CategoryID: 4, HasInstances: true, Color: Color{0, 255, 128}},
	{ID: 17, Name: "person", Category: "human", CategoryID: 7, HasInstances: true, Color: Color{204, 153, 255}},
	{ID: 18, Name: "fence", Category: "obstacle", CategoryID: 2, Color: Color{102, 0, 204}},
	{ID: 19, Name: "bush", Category: "obstacle", CategoryID: 2, Color: Color{255, 153, 204}},
	{ID: 20, Name: "sign", Category: "object", CategoryID: 5, Color: Color{0, 102, 102}},
	{ID: 21, Name: "rock", Category: "obstacle", CategoryID: 2, Color: Color{153, 204, 255}},
	{ID: 22, Name: "bridge", Category: "construction", CategoryID: 6, Color: Color{102, 255, 255}},
	{ID: 23, Name: "concrete", Category: "drivable", CategoryID: 1, Color: Color{101, 101, 11}},
	{ID: 24, Name: "picnic-table", Category: "object", CategoryID: 5, HasInstances: true, Color: Color{114, 85, 47}},
}

// RELLIS-3D reuses the RUGD palette for the shared concepts except concrete,
// and adds its own classes after them.
var rellisLabels = append(withColor(rugdLabels, "concrete", Color{170, 170, 170}),
	Label{ID: 27, Name: "barrier", Category: "obstacle", CategoryID: 2, Color: Color{41, 121, 255}},
	Label{ID: 31, Name: "puddle", Category: "drivable", CategoryID: 1, Color: Color{134, 255, 239}},
	Label{ID: 33, Name: "mud", Category: "drivable", CategoryID: 1, Color: Color{99, 66, 34}},
	Label{ID: 34, Name: "rubble", Category: "obstacle", CategoryID: 2, Color: Color{110, 22, 138}},
)

var catalogs = map[Variant][]Label{
	RUGD:   rugdLabels,
	RELLIS: rellisLabels,
}

func withColor(src []Label, name string, c Color) []Label {
	ret := make([]Label, len(src), len(src)+4)
	copy(ret, src)
	for i := range ret {
		if ret[i].Name == name {
			ret[i].Color = c
		}
	}
	return ret
}
