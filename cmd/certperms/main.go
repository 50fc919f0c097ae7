package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/app"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/config"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/summary"
	"github.com/vocdoni/gofirma/certperms/internal/version"
)

const usage = `usage: certperms [-config file] <command> [flags] [args]

commands:
  locate <thumbprint>                 find a certificate in the system stores
  key [flags] <thumbprint>            show the private key file of a certificate
  perms [flags] <thumbprint>          list the access rules of the key file
  grant [flags] <thumbprint>          add an access rule to the key file
  summary [flags]                     report certificates, key files and rules
  import [-ensure] <document>         install certificates from an import document
  friendly-name [flags] <thumbprint> <name>
                                      set the friendly name of a certificate
  audit                               print the permission change log
  version                             print the certperms version
`

// errUsage marks errors already reported with usage text.
var errUsage = errors.New("usage")

type command struct {
	out io.Writer
	app *app.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts []app.Option) int {
	global := flag.NewFlagSet("certperms", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configFile := global.String("config", "", "YAML configuration file")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}
	if global.Arg(0) == "version" {
		fmt.Fprintln(stdout, version.Current())
		return 0
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fail(stderr, err)
	}
	log, err := app.NewLogger(cfg)
	if err != nil {
		return fail(stderr, err)
	}
	a, err := app.New(cfg, log, opts...)
	if err != nil {
		return fail(stderr, err)
	}
	defer a.Close()

	c := &command{out: stdout, app: a}
	name, rest := global.Arg(0), global.Args()[1:]
	switch name {
	case "locate":
		err = c.locate(ctx, rest, stderr)
	case "key":
		err = c.key(ctx, rest, stderr)
	case "perms":
		err = c.perms(ctx, rest, stderr)
	case "grant":
		err = c.grant(ctx, rest, stderr)
	case "summary":
		err = c.summary(ctx, rest, stderr)
	case "import":
		err = c.importDocument(ctx, rest, stderr)
	case "friendly-name":
		err = c.friendlyName(ctx, rest, stderr)
	case "audit":
		err = c.audit(rest, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		global.Usage()
		return 2
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	if err != nil {
		return fail(stderr, err)
	}
	return 0
}

// fail prints the stable tag, a friendly message and the detail.
func fail(w io.Writer, err error) int {
	fmt.Fprintf(w, "%s: %s (%v)\n", certerr.Tag(err), certerr.Friendly(err), err)
	return 1
}

func (c *command) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// flags parses args and checks the positional argument count.
func flags(fs *flag.FlagSet, args []string, positional ...string) ([]string, error) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: certperms %s [flags] %s\n", fs.Name(), strings.Join(positional, " "))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return nil, errUsage
	}
	if fs.NArg() != len(positional) {
		fs.Usage()
		return nil, errUsage
	}
	return fs.Args(), nil
}

// scopeFlags registers -location and -store. When either is set the lookup
// is limited to that one store.
func scopeFlags(fs *flag.FlagSet) func() (app.Scope, error) {
	location := fs.String("location", "", "only look in CurrentUser or LocalMachine")
	store := fs.String("store", "", "only look in this store of -location (default My)")
	return func() (app.Scope, error) {
		var scope app.Scope
		if *location != "" {
			loc, err := systemstore.ParseLocation(*location)
			if err != nil {
				return scope, err
			}
			scope.Location = loc
		}
		if *store != "" {
			cat, err := systemstore.ParseCategory(*store)
			if err != nil {
				return scope, err
			}
			scope.Category = cat
		}
		return scope, nil
	}
}

type certificateView struct {
	Thumbprint    string `json:"thumbprint"`
	Subject       string `json:"subject"`
	FriendlyName  string `json:"friendlyName,omitempty"`
	Store         string `json:"store"`
	Path          string `json:"path"`
	HasPrivateKey bool   `json:"hasPrivateKey"`
	Provider      string `json:"provider,omitempty"`
	Container     string `json:"container,omitempty"`
}

func viewOf(c *systemstore.Certificate) certificateView {
	v := certificateView{
		Thumbprint:    c.Thumbprint,
		Subject:       c.Subject,
		FriendlyName:  c.FriendlyName,
		Store:         fmt.Sprintf(`%s\%s`, c.Location, c.Category),
		Path:          c.Path(),
		HasPrivateKey: c.HasPrivateKey,
	}
	if key, err := c.PrivateKey(); err == nil {
		v.Provider, v.Container = key.Kind.String(), key.ContainerID
	}
	return v
}

func (c *command) locate(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("locate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pos, err := flags(fs, args, "<thumbprint>")
	if err != nil {
		return err
	}
	cert, err := c.app.Locate(ctx, pos[0])
	if err != nil {
		return err
	}
	return c.print(viewOf(cert))
}

func (c *command) key(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("key", flag.ContinueOnError)
	fs.SetOutput(stderr)
	scope := scopeFlags(fs)
	pos, err := flags(fs, args, "<thumbprint>")
	if err != nil {
		return err
	}
	sc, err := scope()
	if err != nil {
		return err
	}
	kf, err := c.app.KeyFile(ctx, sc, pos[0])
	if err != nil {
		return err
	}
	return c.print(kf)
}

func (c *command) perms(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("perms", flag.ContinueOnError)
	fs.SetOutput(stderr)
	explicit := fs.Bool("explicit", false, "hide inherited entries")
	unique := fs.Bool("unique", false, "list each identity, rights and access combination once")
	text := fs.Bool("text", false, "print one rule per line instead of JSON")
	scope := scopeFlags(fs)
	pos, err := flags(fs, args, "<thumbprint>")
	if err != nil {
		return err
	}
	sc, err := scope()
	if err != nil {
		return err
	}
	p, err := c.app.Permissions(ctx, sc, pos[0])
	if err != nil {
		return err
	}
	if *explicit {
		p.Entries = p.Entries.Explicit()
	}
	if *unique {
		p.Entries = p.Entries.Dedup()
	}
	if *text {
		fmt.Fprintln(c.out, p.Path)
		for _, line := range p.Entries.Strings() {
			fmt.Fprintln(c.out, "  "+line)
		}
		return nil
	}
	return c.print(p)
}

func (c *command) grant(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	fs.SetOutput(stderr)
	principal := fs.String("identity", "", "account or SID to grant, e.g. \"NETWORK SERVICE\"")
	rightsFlag := fs.String("rights", "Read", "rights: Read, ReadAndExecute, Write, Modify, FullControl or a mask")
	access := fs.String("access", "Allow", "Allow or Deny")
	ensure := fs.Bool("ensure", false, "skip if an identical explicit rule exists")
	scope := scopeFlags(fs)
	pos, err := flags(fs, args, "<thumbprint>")
	if err != nil {
		return err
	}
	sc, err := scope()
	if err != nil {
		return err
	}
	rights, err := acl.ParseRights(*rightsFlag)
	if err != nil {
		return err
	}
	effect, err := acl.ParseEffect(*access)
	if err != nil {
		return err
	}
	p, err := c.app.Grant(ctx, sc, pos[0], acl.NewRule(*principal, rights, effect), *ensure)
	if err != nil {
		return err
	}
	return c.print(p)
}

func (c *command) summary(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	location := fs.String("location", "", "CurrentUser or LocalMachine (default: configured locations)")
	store := fs.String("store", "", "store name (default: configured stores)")
	keysOnly := fs.Bool("private-key-only", false, "only certificates with a private key")
	detailed := fs.Bool("detailed", false, "walk every store category")
	if _, err := flags(fs, args); err != nil {
		return err
	}

	opts := summary.Options{PrivateKeyOnly: *keysOnly, Detailed: *detailed}
	if *location != "" {
		loc, err := systemstore.ParseLocation(*location)
		if err != nil {
			return err
		}
		opts.Locations = []systemstore.Location{loc}
	}
	if *store != "" {
		cat, err := systemstore.ParseCategory(*store)
		if err != nil {
			return err
		}
		opts.Categories = []systemstore.Category{cat}
	}
	return c.print(c.app.Summarize(ctx, opts))
}

func (c *command) importDocument(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ensure := fs.Bool("ensure", false, "skip permissions that are already granted")
	pos, err := flags(fs, args, "<document>")
	if err != nil {
		return err
	}
	outcomes, err := c.app.Import(ctx, pos[0], *ensure)
	if err != nil {
		return err
	}
	if err := c.print(outcomes); err != nil {
		return err
	}
	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d certificates failed", failed, len(outcomes))
	}
	return nil
}

func (c *command) friendlyName(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("friendly-name", flag.ContinueOnError)
	fs.SetOutput(stderr)
	location := fs.String("location", "CurrentUser", "CurrentUser or LocalMachine")
	store := fs.String("store", "My", "store name")
	pos, err := flags(fs, args, "<thumbprint>", "<name>")
	if err != nil {
		return err
	}
	loc, err := systemstore.ParseLocation(*location)
	if err != nil {
		return err
	}
	cat, err := systemstore.ParseCategory(*store)
	if err != nil {
		return err
	}
	cert, err := c.app.SetFriendlyName(ctx, loc, cat, pos[0], pos[1])
	if err != nil {
		return err
	}
	return c.print(viewOf(cert))
}

func (c *command) audit(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if _, err := flags(fs, args); err != nil {
		return err
	}
	entries, err := c.app.AuditEntries()
	if err != nil {
		return err
	}
	return c.print(entries)
}
