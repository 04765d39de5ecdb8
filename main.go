package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gregLibert/cardshare/internal/bridge"
	"github.com/gregLibert/cardshare/internal/catalog"
	"github.com/gregLibert/cardshare/internal/config"
	"github.com/gregLibert/cardshare/internal/linkserver"
	"github.com/gregLibert/cardshare/internal/logging"
	"github.com/gregLibert/cardshare/internal/pcsc"
	"github.com/gregLibert/cardshare/internal/store"
	"github.com/gregLibert/cardshare/pkg/hce"
	"github.com/gregLibert/cardshare/pkg/link"
	"github.com/gregLibert/cardshare/pkg/transfer"
)

const usage = `usage: cardshare [-config file] <command> [args]

commands:
  list                       print the stored cards
  export-link [id...]        print a share link for all or the given cards
  import-link URL            merge the cards carried by a share link
  serve [-share id,...]      run the link server and the contactless bridge
  pull [ws://addr|pcsc|discover]
                             receive cards from a peer in the field
  peers [-wait 3s]           list bridges advertised on the local network
`

// app holds what every command needs.
type app struct {
	cfg     config.Config
	catalog *catalog.Catalog
	store   *store.Store
	log     zerolog.Logger
}

func main() {
	fs := flag.NewFlagSet("cardshare", flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("CARDSHARE_CONFIG"), "path to a TOML config file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	a, err := load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cardshare: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "list":
		err = a.list()
	case "export-link":
		err = a.exportLink(args)
	case "import-link":
		err = a.importLink(args)
	case "serve":
		err = a.serve(ctx, args)
	case "pull":
		err = a.pull(ctx, args)
	case "peers":
		err = a.peers(ctx, args)
	default:
		fs.Usage()
		os.Exit(2)
	}
	if err != nil {
		a.log.Error().Err(err).Str("command", cmd).Msg("command failed")
		os.Exit(1)
	}
}

func load(configPath string) (*app, error) {
	if err := config.LoadEnv(".env"); err != nil {
		return nil, err
	}
	logging.ConfigureRuntime()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Str("path", cfg.Catalog.Path).Msg("no catalog file, every provider is unknown")
		cat = catalog.New()
	case err != nil:
		return nil, err
	}

	st, err := store.Open(cfg.Store.Path, store.WithLogger(logging.Component("store")))
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, catalog: cat, store: st, log: logging.Component("cli")}, nil
}

func (a *app) hceOptions() []hce.Option {
	aid, _ := a.cfg.HCE.AIDBytes()
	return []hce.Option{
		hce.WithAID(aid),
		hce.WithLabel(a.cfg.HCE.Label),
		hce.WithTimeout(a.cfg.HCE.Timeout.Duration),
		hce.WithMaxFormatVersion(a.cfg.HCE.MaxFormatVersion),
	}
}

func (a *app) list() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tNAME\tNUMBER")
	for _, c := range a.store.List() {
		name := ""
		switch {
		case c.Name != nil:
			name = *c.Name
		case c.CustomProperties != nil:
			name = c.CustomProperties.DisplayName
		default:
			if p, ok := a.catalog.ProviderInfo(c.Provider); ok {
				name = p.DisplayName
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Provider, name, c.CardNumber)
	}
	return w.Flush()
}

func (a *app) exportLink(args []string) error {
	cards := a.store.List()
	if len(args) > 0 {
		ids, err := parseIDs(strings.Join(args, ","))
		if err != nil {
			return err
		}
		cards = a.store.Filter(ids)
	}
	if len(cards) == 0 {
		return errors.New("no cards to export")
	}

	url, err := link.Export(a.cfg.Link.Base, transfer.NewCodec(a.catalog), cards)
	if err != nil {
		return err
	}
	fmt.Println(url)
	return nil
}

func (a *app) importLink(args []string) error {
	if len(args) != 1 {
		return errors.New("import-link takes exactly one URL")
	}
	cards, err := link.DecodeString(args[0], transfer.NewCodec(a.catalog))
	if err != nil {
		return err
	}
	added, skipped, err := a.store.Merge(cards)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d card(s), %d already present\n", added, skipped)
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	share := fs.String("share", "", "comma separated card ids to share over the bridge (default all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	responder := hce.NewResponder(a.store, a.catalog, hce.AlwaysForeground,
		append(a.hceOptions(), hce.WithLogger(logging.Component("responder")))...)
	var ids []int64
	if *share != "" {
		var err error
		if ids, err = parseIDs(*share); err != nil {
			return err
		}
	}
	responder.Arm(ids...)

	links := linkserver.New(a.store, a.catalog, linkserver.Options{
		Base:              a.cfg.Link.Base,
		CorsOrigins:       a.cfg.Link.CorsOrigins,
		RequestsPerMinute: a.cfg.Link.RequestsPerMinute,
	}, logging.Component("linkserver"))

	servers := []*http.Server{
		{Addr: a.cfg.Link.Listen, Handler: links.Handler(), ReadHeaderTimeout: 10 * time.Second},
		{Addr: a.cfg.Bridge.Listen, Handler: bridge.NewServer(responder, logging.Component("bridge")).Handler(), ReadHeaderTimeout: 10 * time.Second},
	}

	if a.cfg.Bridge.Advertise {
		port, err := listenPort(a.cfg.Bridge.Listen)
		if err != nil {
			return err
		}
		zc, err := bridge.Advertise(a.cfg.Bridge.Instance, port)
		if err != nil {
			a.log.Warn().Err(err).Msg("mDNS advertisement unavailable")
		} else {
			defer zc.Shutdown()
		}
	}

	errc := make(chan error, len(servers))
	for _, srv := range servers {
		a.log.Info().Str("addr", srv.Addr).Msg("listening")
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(srv)
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	responder.Disarm()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.log.Warn().Err(serr).Str("addr", srv.Addr).Msg("shutdown")
		}
	}
	return err
}

func (a *app) pull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pull", flag.ContinueOnError)
	reader := fs.String("reader", "", "PC/SC reader name (default first contactless reader)")
	keep := fs.Bool("keep", false, "keep listening after a successful exchange")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := "discover"
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}

	initiator := hce.NewInitiator(a.store, a.catalog,
		append(a.hceOptions(),
			hce.WithLogger(logging.Component("initiator")),
			hce.OnSettled(func(res hce.Result) {
				if res.Err == nil {
					fmt.Printf("imported %d card(s), %d already present\n", res.Imported, res.Skipped)
				}
			}),
		)...)
	initiator.Enable()
	defer initiator.Close()

	switch {
	case target == "pcsc":
		return a.pullPCSC(ctx, initiator, *reader, *keep)
	case target == "discover":
		peer, err := a.discoverOne(ctx)
		if err != nil {
			return err
		}
		target = peer.URL
	case !strings.HasPrefix(target, "ws://") && !strings.HasPrefix(target, "wss://"):
		return fmt.Errorf("unknown pull target %q", target)
	}

	res, err := initiator.Discovered(ctx, bridge.Dial(target))
	if err != nil {
		return err
	}
	return resultError(res)
}

func (a *app) pullPCSC(ctx context.Context, initiator *hce.Initiator, reader string, keep bool) error {
	poller, err := pcsc.Open(reader, logging.Component("pcsc"))
	if err != nil {
		return err
	}
	defer poller.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var last error
	a.log.Info().Str("reader", poller.Reader()).Msg("waiting for a phone")
	runErr := poller.Run(ctx, func(ctx context.Context, tag *pcsc.Tag) {
		res, err := initiator.Discovered(ctx, tag)
		if err != nil {
			last = err
			return
		}
		last = resultError(res)
		if last != nil && res.Recoverable {
			a.log.Warn().Err(last).Msg("exchange failed, tap again")
			return
		}
		if !keep {
			cancel()
		}
	})
	if runErr != nil {
		return runErr
	}
	return last
}

func (a *app) discoverOne(ctx context.Context) (bridge.Peer, error) {
	peers, err := discover(ctx, 3*time.Second)
	if err != nil {
		return bridge.Peer{}, err
	}
	if len(peers) == 0 {
		return bridge.Peer{}, errors.New("no bridge found on the local network")
	}
	a.log.Info().Str("instance", peers[0].Instance).Str("url", peers[0].URL).Msg("using bridge")
	return peers[0], nil
}

func (a *app) peers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("peers", flag.ContinueOnError)
	wait := fs.Duration("wait", 3*time.Second, "how long to browse")
	if err := fs.Parse(args); err != nil {
		return err
	}
	peers, err := discover(ctx, *wait)
	if err != nil {
		return err
	}
	for _, p := range peers {
		fmt.Printf("%s\t%s\n", p.Instance, p.URL)
	}
	return nil
}

func discover(ctx context.Context, wait time.Duration) ([]bridge.Peer, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return bridge.Discover(ctx)
}

func resultError(res hce.Result) error {
	if res.Err == nil {
		return nil
	}
	if kind, ok := transfer.KindOf(res.Err); ok {
		return fmt.Errorf("transaction %d failed (%s): %w", res.TransactionID, kind, res.Err)
	}
	return fmt.Errorf("transaction %d failed: %w", res.TransactionID, res.Err)
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("bridge listen address %q: %w", addr, err)
	}
	return strconv.Atoi(port)
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid card id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
