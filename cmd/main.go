package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shopfront/cartsync/internal/client"
	"github.com/shopfront/cartsync/internal/config"
	"github.com/shopfront/cartsync/internal/domain"
	"github.com/shopfront/cartsync/internal/logger"
	"github.com/shopfront/cartsync/internal/notify"
	"github.com/shopfront/cartsync/internal/storage"
	"github.com/shopfront/cartsync/internal/store"
)

// sessionKey holds the anonymous session token in durable storage, beside the
// cart snapshot, so the session survives restarts the same way the cart does.
const sessionKey = "session"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStorage, err := buildStorage(ctx, cfg)
	if err != nil {
		zl.Fatal("Failed to set up storage", zap.Error(err))
	}
	defer closeStorage()

	opts := []client.Option{
		client.WithTimeout(cfg.APITimeout),
		client.WithSessionToken(sessionToken(ctx, st, cfg.SessionToken, zl)),
	}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, client.WithRateLimit(cfg.RateLimitRPS, 1))
	}
	if cfg.Telemetry {
		opts = append(opts, client.WithTelemetry())
	}
	api := client.New(cfg.APIBaseURL, opts...)

	cart := store.New(api, store.NewMirror(st, zl), notify.NewZapNotifier(zl), zl)

	if err := run(ctx, cart, os.Args[1:]); err != nil {
		zl.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cart *store.Store, args []string) error {
	if len(args) == 0 {
		usage()
		return nil
	}

	switch args[0] {
	case "show":
		printItems(cart.Items())
		return nil

	case "refresh":
		if err := cart.Refresh(ctx); err != nil {
			return err
		}
		printItems(cart.Items())
		return nil

	case "add":
		if len(args) < 3 {
			return errors.New("usage: add <product-id> <quantity> [variant-id]")
		}
		quantity, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity %q is not a number", args[2])
		}
		variantID := ""
		if len(args) > 3 {
			variantID = args[3]
		}
		if err := cart.AddItem(ctx, domain.ProductSnapshot{ID: args[1]}, quantity, variantID); err != nil {
			return err
		}
		// Pull the denormalized product data the service attached to the item.
		if err := cart.Refresh(ctx); err != nil {
			return err
		}
		printItems(cart.Items())
		return nil

	case "update":
		if len(args) < 3 {
			return errors.New("usage: update <product-id> <quantity> [variant-id]")
		}
		quantity, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("quantity %q is not a number", args[2])
		}
		variantID := ""
		if len(args) > 3 {
			variantID = args[3]
		}
		if err := cart.UpdateQuantity(ctx, args[1], quantity, variantID); err != nil {
			return err
		}
		printItems(cart.Items())
		return nil

	case "remove":
		if len(args) < 2 {
			return errors.New("usage: remove <product-id> [variant-id]")
		}
		variantID := ""
		if len(args) > 2 {
			variantID = args[2]
		}
		if err := cart.RemoveItem(ctx, args[1], variantID); err != nil {
			return err
		}
		printItems(cart.Items())
		return nil

	case "clear":
		return cart.Clear(ctx)

	case "reset":
		cart.Reset()
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func buildStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	switch cfg.Storage.Backend {
	case "file":
		fs, err := storage.NewFileStorage(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil

	case "redis":
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return storage.NewRedisStorage(redisClient), func() { redisClient.Close() }, nil

	default:
		return storage.NewMemoryStorage(), func() {}, nil
	}
}

// sessionToken returns the configured token, or mints and persists an
// anonymous one on first use.
func sessionToken(ctx context.Context, st storage.Storage, configured string, zl *zap.Logger) string {
	if configured != "" {
		return configured
	}
	if data, err := st.Get(ctx, sessionKey); err == nil {
		return string(data)
	}
	token := uuid.NewString()
	if err := st.Set(ctx, sessionKey, []byte(token)); err != nil {
		zl.Warn("could not persist session token", zap.Error(err))
	}
	return token
}

func printItems(items domain.Items) {
	if len(items) == 0 {
		fmt.Println("cart is empty")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tVARIANT\tNAME\tQTY\tPRICE")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\n",
			item.ProductID, item.VariantID, item.Product.Name, item.Quantity, item.Product.Price)
	}
	fmt.Fprintf(w, "\t\t\t%d\t%.2f\n", items.TotalQuantity(), items.Subtotal())
	w.Flush()
}

func usage() {
	fmt.Println(`cartsync <command>

commands:
  show                                  print the locally mirrored cart
  refresh                               fetch the authoritative cart
  add <product-id> <qty> [variant-id]   add units to the cart
  update <product-id> <qty> [variant-id] set an absolute quantity (0 removes)
  remove <product-id> [variant-id]      remove a line item
  clear                                 empty the cart
  reset                                 wipe local state without a remote call`)
}
