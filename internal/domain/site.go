package domain

// Site is a measurement station. Its metadata is passed to the converter.
type Site struct {
	ID        string  `mapstructure:"id" json:"id"`
	Name      string  `mapstructure:"name" json:"name"`
	Latitude  float64 `mapstructure:"latitude" json:"latitude"`
	Longitude float64 `mapstructure:"longitude" json:"longitude"`
	Altitude  float64 `mapstructure:"altitude" json:"altitude"`
}

// Model is a numerical weather model whose forecasts are archived.
// Lower OptimumOrder ranks better.
type Model struct {
	ID           string `mapstructure:"id" json:"id"`
	OptimumOrder int    `mapstructure:"optimum_order" json:"optimumOrder"`
}

// ModelRanking maps model id to optimum order.
type ModelRanking map[string]int

// NewModelRanking builds a ranking from the configured models.
func NewModelRanking(models []Model) ModelRanking {
	r := make(ModelRanking, len(models))
	for _, m := range models {
		r[m.ID] = m.OptimumOrder
	}
	return r
}

// Rank returns the optimum order of id and whether the model is known.
func (r ModelRanking) Rank(id string) (int, bool) {
	o, ok := r[id]
	return o, ok
}
