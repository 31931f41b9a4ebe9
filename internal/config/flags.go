package config

import (
	"flag"
	"strconv"
)

var (
	flagConfig      = flag.String("config", "", "Path to config file")
	flagDebug       = flag.Bool("debug", false, "Enable debug logging")
	flagOutput      = flag.String("o", "", "Output mesh path")
	flagKFInterval  = flag.Int("kf-interval", -1, "Keep every k-th frame (0 keeps all)")
	flagKFSamples   = flag.Int("kf-samples", 0, "Points sampled per kept frame")
	flagMinOpacity  = flag.Float64("min-opacity", -1, "Minimum rendered opacity")
	flagMaxDist     = flag.Float64("max-depth-dist", -1, "Maximum rendered distortion")
	flagMedianDepth = flag.Bool("median-depth", false, "Use median instead of expected depth")
	flagWorkers     = flag.Int("workers", 0, "Frames rendered in parallel")
	flagMinDensity  = flag.Float64("poisson-min-density", -1, "Density quantile pruned from the mesh")
	flagSaveCloud   = flag.String("save-cloud", "", "Also write the merged point cloud to this path")

	flagPoissonDepth optionalInt
	flagPoissonWidth optionalFloat
)

func init() {
	flag.Var(&flagPoissonDepth, "poisson-depth", "Poisson grid depth (negative selects width mode)")
	flag.Var(&flagPoissonWidth, "poisson-width", "Poisson cell width")
}

// optionalInt is an int flag that remembers whether it was given.
type optionalInt struct {
	value int
	set   bool
}

func (o *optionalInt) String() string {
	if !o.set {
		return ""
	}
	return strconv.Itoa(o.value)
}

func (o *optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.value, o.set = v, true
	return nil
}

// optionalFloat is a float flag that remembers whether it was given.
type optionalFloat struct {
	value float64
	set   bool
}

func (o *optionalFloat) String() string {
	if !o.set {
		return ""
	}
	return strconv.FormatFloat(o.value, 'g', -1, 64)
}

func (o *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.value, o.set = v, true
	return nil
}

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// Args returns the positional arguments left after flag parsing.
func Args() []string {
	return flag.Args()
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagOutput != "" {
		cfg.Output.Path = *flagOutput
	}
	if *flagKFInterval >= 0 {
		cfg.Fusion.KFInterval = *flagKFInterval
	}
	if *flagKFSamples > 0 {
		cfg.Fusion.KFSamples = *flagKFSamples
	}
	if *flagMinOpacity >= 0 {
		cfg.Fusion.MinOpacity = *flagMinOpacity
	}
	if *flagMaxDist >= 0 {
		cfg.Fusion.MaxDepthDist = *flagMaxDist
	}
	if *flagMedianDepth {
		cfg.Fusion.UseMedianDepth = true
	}
	if *flagWorkers > 0 {
		cfg.Fusion.Workers = *flagWorkers
	}
	if *flagMinDensity >= 0 {
		cfg.Poisson.MinDensity = *flagMinDensity
	}
	if *flagSaveCloud != "" {
		cfg.Output.SaveCloud = *flagSaveCloud
	}
	if flagPoissonDepth.set {
		depth := flagPoissonDepth.value
		cfg.Poisson.Depth = &depth
	}
	if flagPoissonWidth.set {
		width := flagPoissonWidth.value
		cfg.Poisson.Width = &width
	}
}
