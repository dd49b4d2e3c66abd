// rebind chequea si el key server rotó claves desde que un dispositivo fue
// bindeado, comparando la metadata del slot contra el advertisement vigente.
//
// Exit codes de report: 0 = binding limpio, 1 = error (no se pudo
// verificar), 2 = rotación detectada (hay que rebindear).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/rebind/internal/adv"
	"github.com/dropDatabas3/rebind/internal/config"
	"github.com/dropDatabas3/rebind/internal/observability/logger"
	"github.com/dropDatabas3/rebind/internal/pin"
	"github.com/dropDatabas3/rebind/internal/slot"
	"github.com/dropDatabas3/rebind/internal/walk"
)

const exitRotation = 2

var (
	flagConfig    string
	flagEnvFile   string
	flagDevice    string
	flagSlot      int
	flagTokensDir string
)

func main() {
	root := &cobra.Command{
		Use:           "rebind",
		Short:         "detecta rotación server-side de claves de binding",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "ruta a config.yaml (opcional)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "ruta a .env (opcional)")
	root.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "block device (ej: /dev/sda2)")
	root.PersistentFlags().IntVarP(&flagSlot, "slot", "s", 0, "keyslot a chequear")
	root.PersistentFlags().StringVar(&flagTokensDir, "tokens-dir", "", "leer tokens exportados de este directorio en vez de cryptsetup")

	root.AddCommand(reportCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rebind:", err)
		os.Exit(1)
	}
}

// setup carga env/config e inicializa el logger. Común a todos los comandos.
func setup() (*config.Config, error) {
	if flagEnvFile != "" {
		_ = godotenv.Load(flagEnvFile)
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagTokensDir != "" {
		cfg.Check.TokensDir = flagTokensDir
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "rebind",
	})
	return cfg, nil
}

// reader elige el colaborador de lectura de tokens según configuración.
func reader(cfg *config.Config) slot.Reader {
	if cfg.Check.TokensDir != "" {
		return &slot.DirReader{Dir: cfg.Check.TokensDir}
	}
	return &slot.CryptsetupReader{}
}

// loadBinding lee y clasifica la metadata de binding del slot pedido.
func loadBinding(ctx context.Context, cfg *config.Config) (pin.Config, error) {
	if flagDevice == "" && cfg.Check.TokensDir == "" {
		return pin.Config{}, fmt.Errorf("falta --device (o --tokens-dir)")
	}
	raw, err := reader(cfg).ReadToken(ctx, flagDevice, flagSlot)
	if err != nil {
		return pin.Config{}, err
	}
	return pin.FromLUKSToken(raw)
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "reporta claves registradas que el server ya no publica",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			ctx := cmd.Context()

			binding, err := loadBinding(ctx, cfg)
			if err != nil {
				return err
			}

			walker := walk.New(
				adv.NewFetcher(cfg.CheckTimeout()),
				walk.WithMaxDepth(cfg.Check.MaxDepth),
			)
			stale, err := walker.Walk(ctx, binding)
			if err != nil {
				// Fallar acá jamás significa "sin rotación": se reporta y
				// el exit code queda en 1.
				return err
			}

			if stale.Len() == 0 {
				fmt.Println("binding verificado: sin rotación de claves")
				return nil
			}

			fmt.Printf("claves rotadas (%d): el binding necesita regenerarse\n", stale.Len())
			for _, tp := range stale.Sorted() {
				fmt.Println("  ", tp)
			}
			os.Exit(exitRotation)
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "muestra el esquema de binding del slot sin tocar la red",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			binding, err := loadBinding(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printBinding(binding, 0)
			return nil
		},
	}
}

// printBinding imprime el árbol de pins, decodificando sss recursivamente.
func printBinding(cfg pin.Config, indent int) {
	pad := ""
	for i := 0; i < indent; i++ {
		pad += "  "
	}
	switch cfg.Scheme {
	case pin.SchemeTang:
		fmt.Printf("%stang url=%s\n", pad, cfg.Tang.URL)
	case pin.SchemeSSS:
		fmt.Printf("%ssss t=%d branches=%d\n", pad, cfg.SSS.Threshold, len(cfg.SSS.JWE))
		for _, token := range cfg.SSS.JWE {
			sub, err := pin.DecodeToken(token)
			if err != nil {
				fmt.Printf("%s  <sub-token ilegible: %v>\n", pad, err)
				continue
			}
			printBinding(sub, indent+1)
		}
	default:
		fmt.Printf("%s%s (sin claves remotas)\n", pad, cfg.Name)
	}
}
