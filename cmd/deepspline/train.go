package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/deepspline/internal/backend/cpu"
	"github.com/born-ml/deepspline/internal/nn"
	"github.com/born-ml/deepspline/internal/optim"
	"github.com/born-ml/deepspline/internal/runstats"
	"github.com/born-ml/deepspline/internal/tensor"
)

// trainConfig is the YAML training configuration.
type trainConfig struct {
	Epochs     int     `yaml:"epochs"`
	BatchSize  int     `yaml:"batch_size"`
	Samples    int     `yaml:"samples"`
	Hidden     int     `yaml:"hidden"`
	LR         float32 `yaml:"lr"`
	SplineLR   float32 `yaml:"spline_lr"`
	Momentum   float32 `yaml:"momentum"`
	Activation string  `yaml:"activation"` // deep_bspline | deep_bspline_explicit_linear | deep_relu

	SplineSize  int     `yaml:"spline_size"`
	SplineRange float64 `yaml:"spline_range"` // symmetric knot support half-width
	Lambda      float64 `yaml:"lambda"`
	Lipschitz   bool    `yaml:"lipschitz"`
	Threshold   float64 `yaml:"threshold"`
	WeightDecay float64 `yaml:"weight_decay"`
	SaveMemory  bool    `yaml:"save_memory"`

	LogEvery int   `yaml:"log_every"`
	Seed     int64 `yaml:"seed"`
}

func defaultTrainConfig() trainConfig {
	return trainConfig{
		Epochs:      200,
		BatchSize:   32,
		Samples:     512,
		Hidden:      16,
		LR:          0.01,
		SplineLR:    0.001,
		Momentum:    0.9,
		Activation:  "deep_bspline",
		SplineSize:  21,
		SplineRange: 4,
		Lambda:      1e-4,
		Threshold:   1e-4,
		LogEvery:    20,
		Seed:        42,
	}
}

// splineGridFromRange converts a symmetric support half-width into the knot
// spacing for a spline of the given size: the outermost knots land on
// -range and +range (up to the one-knot asymmetry of an odd grid).
func splineGridFromRange(halfWidth float64, size int) float64 {
	return 2 * halfWidth / float64(size-1)
}

func activationKind(name string) (nn.ActivationKind, error) {
	for _, k := range []nn.ActivationKind{
		nn.ActivationBSpline, nn.ActivationBSplineExplicitLinear, nn.ActivationReLUBasis,
	} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown spline activation %q", name)
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (defaults used when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := defaultTrainConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	backend := cpu.New()

	kind, err := activationKind(cfg.Activation)
	if err != nil {
		return err
	}

	splineCfg := nn.SplineConfig{
		Mode:           nn.ModeLinear,
		NumActivations: cfg.Hidden,
		Size:           cfg.SplineSize,
		Grid:           splineGridFromRange(cfg.SplineRange, cfg.SplineSize),
		Init:           nn.InitLeakyReLU,
		SaveMemory:     cfg.SaveMemory,
	}

	lin1, err := nn.NewLinear(1, cfg.Hidden, backend)
	if err != nil {
		return err
	}
	act, err := nn.NewActivation(nn.ActivationConfig{Kind: kind, Spline: splineCfg}, backend)
	if err != nil {
		return err
	}
	lin2, err := nn.NewLinear(cfg.Hidden, 1, backend)
	if err != nil {
		return err
	}

	net, err := nn.NewNetwork(nn.NetworkConfig{
		WeightDecay: cfg.WeightDecay,
		Lambda:      cfg.Lambda,
		Lipschitz:   cfg.Lipschitz,
		Threshold:   cfg.Threshold,
	}, backend, lin1, act, lin2)
	if err != nil {
		return err
	}
	net.InitializeWeights()

	// Target: a piecewise-smooth 1D function the splines can sparsely fit.
	target := func(x float64) float64 {
		return math.Sin(2*x) + 0.5*math.Abs(x)
	}
	xs, ys := make([]float32, cfg.Samples), make([]float32, cfg.Samples)
	for i := range xs {
		x := rng.Float64()*2*cfg.SplineRange - cfg.SplineRange
		xs[i] = float32(x)
		ys[i] = float32(target(x))
	}

	mainOpt := optim.NewSGD(net.ParametersNoSpline(), optim.SGDConfig{
		LR:          cfg.LR,
		Momentum:    cfg.Momentum,
		WeightDecay: float32(cfg.WeightDecay),
	})
	splineOpt := optim.NewAdam(net.ParametersSpline(), optim.AdamConfig{LR: cfg.SplineLR})
	loss := nn.NewMSELoss()

	sampler, err := runstats.NewSampler()
	if err != nil {
		return err
	}

	log.Printf("training: activation=%s hidden=%d size=%d grid=%.4f lambda=%g lipschitz=%v",
		kind, cfg.Hidden, cfg.SplineSize, splineCfg.Grid, cfg.Lambda, cfg.Lipschitz)

	batches := cfg.Samples / cfg.BatchSize
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		perm := rng.Perm(cfg.Samples)
		var epochLoss float64

		for b := 0; b < batches; b++ {
			xb := make([]float32, cfg.BatchSize)
			yb := make([]float32, cfg.BatchSize)
			for i := 0; i < cfg.BatchSize; i++ {
				idx := perm[b*cfg.BatchSize+i]
				xb[i] = xs[idx]
				yb[i] = ys[idx]
			}
			shape := tensor.Shape{cfg.BatchSize, 1}
			input, err := tensor.FromFloat32(xb, shape, backend.Device())
			if err != nil {
				return err
			}
			want, err := tensor.FromFloat32(yb, shape, backend.Device())
			if err != nil {
				return err
			}

			mainOpt.ZeroGrad()
			splineOpt.ZeroGrad()

			pred := net.Forward(input)
			epochLoss += float64(loss.Forward(pred, want))

			net.Backward(loss.Backward())
			net.AccumulateTVGrads()

			mainOpt.Step()
			splineOpt.Step()
		}

		if epoch%cfg.LogEvery == 0 || epoch == cfg.Epochs {
			weighted, raw := net.TVBV()
			stats, serr := sampler.Sample()
			if serr != nil {
				return serr
			}
			msg := fmt.Sprintf("epoch %d: loss=%.6f tvbv=%.4f (weighted %.6f) %s",
				epoch, epochLoss/float64(batches), raw, weighted, stats)
			if cfg.Lipschitz {
				msg += fmt.Sprintf(" lipschitz<=%.4f", net.LipschitzBound())
			}
			log.Print(msg)
		}
	}

	before, err := net.ComputeSparsity()
	if err != nil {
		return err
	}
	if err := net.SparsifyActivations(); err != nil {
		return err
	}
	log.Printf("sparsified: %d slopes below threshold %g", before, cfg.Threshold)
	return nil
}
