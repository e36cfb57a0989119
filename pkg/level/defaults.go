package level

// DefaultRaw is the raw record layout: Loops/Loop0001_<title>.txt.
func DefaultRaw() RawSpec {
	return RawSpec{Dir: "Loops", Prefix: "Loop", Width: 4, Extension: ".txt"}
}

// DefaultSpecs returns the eight-level table, weekly to centurial.
func DefaultSpecs() []Spec {
	return []Spec{
		{ID: "weekly", Prefix: "W", Width: 4, Dir: "1_Weekly", EarlyThreshold: 5, PeriodWindow: 7 * Day},
		{ID: "monthly", Prefix: "M", Width: 3, Dir: "2_Monthly", EarlyThreshold: 5, PeriodWindow: 30 * Day},
		{ID: "quarterly", Prefix: "Q", Width: 3, Dir: "3_Quarterly", EarlyThreshold: 5, PeriodWindow: 90 * Day},
		{ID: "annual", Prefix: "A", Width: 2, Dir: "4_Annual", EarlyThreshold: 4, PeriodWindow: 365 * Day},
		{ID: "triennial", Prefix: "T", Width: 2, Dir: "5_Triennial", EarlyThreshold: 3, PeriodWindow: 1095 * Day},
		{ID: "decadal", Prefix: "D", Width: 2, Dir: "6_Decadal", EarlyThreshold: 3, PeriodWindow: 3650 * Day},
		{ID: "multi_decadal", Prefix: "MD", Width: 2, Dir: "7_Multi-decadal", EarlyThreshold: 3, PeriodWindow: 10950 * Day},
		{ID: "centurial", Prefix: "C", Width: 2, Dir: "8_Centurial", EarlyThreshold: 4, PeriodWindow: 36500 * Day},
	}
}

// Default returns the registry built from DefaultRaw and DefaultSpecs.
func Default() *Registry {
	r, err := NewRegistry(DefaultRaw(), DefaultSpecs())
	if err != nil {
		panic("level: invalid default table: " + err.Error())
	}
	return r
}
