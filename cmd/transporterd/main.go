// Command transporterd is a small demo binary exercising the transporter
// module end to end: an "expose" command serves a greeter value over a
// WebSocket listener; a "connect" command dials it and calls through the
// resulting proxy. It plays the role the teacher's examples/cluster/main.go
// plays for nano — a runnable demonstration, not a library entry point.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/nano-kit/transporter"
	"github.com/nano-kit/transporter/transport/ws"
	"github.com/pingcap/errors"
	"github.com/urfave/cli"
)

// greeter is the value transporterd expose serves to callers.
type greeter struct{}

// Hello resolves at path "Hello" and is exported as a remote call the way
// the specification's Call envelopes target a function by path.
func (greeter) Hello(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", errors.New("name must not be empty")
	}
	return "hello, " + name, nil
}

func main() {
	app := cli.NewApp()
	app.Name = "transporterd"
	app.Description = "Transporter demo server and client"
	app.Commands = []cli.Command{
		{
			Name: "expose",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "listen,l",
					Usage: "WebSocket listen address",
					Value: "127.0.0.1:8765",
				},
				cli.StringFlag{
					Name:  "path",
					Usage: "WebSocket upgrade path",
					Value: "/transporter",
				},
			},
			Action: runExpose,
		},
		{
			Name: "connect",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "url",
					Usage: "WebSocket URL to dial",
					Value: "ws://127.0.0.1:8765/transporter",
				},
				cli.StringFlag{
					Name:  "name",
					Usage: "name to greet",
					Value: "world",
				},
			},
			Action: runConnect,
		},
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("transporterd error: %+v", errors.Trace(err))
	}
}

func runExpose(c *cli.Context) error {
	addr := c.String("listen")
	path := c.String("path")

	listener, err := ws.Listen(addr, path)
	if err != nil {
		return errors.Annotatef(err, "listen on %s", addr)
	}

	server, err := transporter.Listen(listener, greeter{})
	if err != nil {
		return errors.Annotate(err, "serve greeter")
	}
	log.Printf("serving greeter on ws://%s%s", addr, path)

	defer server.Stop()
	select {}
}

func runConnect(c *cli.Context) error {
	url := c.String("url")
	name := c.String("name")

	port, err := ws.Dial(url)
	if err != nil {
		return errors.Annotatef(err, "dial %s", url)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proxy, handle, err := transporter.Connect(ctx, port)
	if err != nil {
		return errors.Annotate(err, "connect")
	}
	defer handle.Stop()

	result, err := proxy.Get("Hello").Call(ctx, name)
	if err != nil {
		return errors.Annotate(err, "call Hello")
	}
	log.Printf("Hello(%q) = %v", name, result)
	return nil
}
