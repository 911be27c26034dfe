// Command u2fhidtool is a small CLI front end over go-u2fhid: it
// lists attached U2F HID authenticators, or initializes a channel on
// the first one found and winks it or exercises the APDU layer.
package main

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/op/go-logging"
	"github.com/urfave/cli"

	u2fhid "github.com/kryptco/go-u2fhid"
	"github.com/kryptco/go-u2fhid/apdu"
	"github.com/kryptco/go-u2fhid/internal/log"
)

var (
	bold  = color.New(color.Bold)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
)

func fatalf(msg string, args ...interface{}) {
	red.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}

func randomNonce() ([8]byte, error) {
	var nonce [8]byte
	_, err := rand.Read(nonce[:])
	return nonce, err
}

func listCommand(c *cli.Context) error {
	mgr := u2fhid.NewManager()
	it, err := mgr.Discover()
	if err != nil {
		return err
	}

	found := 0
	for {
		dev, ok := it.Next()
		if !ok {
			break
		}
		found++
		info := dev.Info()
		bold.Printf("%04x:%04x", info.VendorID, info.ProductID)
		fmt.Printf(" %s %s\n", info.Manufacturer, info.Product)
		dev.Close()
	}
	if found == 0 {
		fmt.Println("no U2F HID devices found")
	}
	return nil
}

func winkCommand(c *cli.Context) error {
	return withFirstDevice(func(dev *u2fhid.InitializedDevice, info u2fhid.AuthenticatorInfo) error {
		if !info.HasCapability(u2fhid.CapabilityWink) {
			fmt.Println("device did not advertise WINK capability; sending anyway")
		}
		if err := dev.Wink(); err != nil {
			return err
		}
		green.Println("wink ok")
		return nil
	})
}

func versionCommand(c *cli.Context) error {
	return withFirstDevice(func(dev *u2fhid.InitializedDevice, info u2fhid.AuthenticatorInfo) error {
		client := apdu.New(dev)
		resp, err := client.SendVersion()
		if err != nil {
			return err
		}
		green.Printf("U2F_VERSION: %s\n", string(resp))
		return nil
	})
}

func registerCommand(c *cli.Context) error {
	return withFirstDevice(func(dev *u2fhid.InitializedDevice, info u2fhid.AuthenticatorInfo) error {
		challenge := sha256.Sum256([]byte(c.String("challenge")))
		app := sha256.Sum256([]byte(c.String("app")))

		client := apdu.New(dev)
		resp, err := client.SendRegister(challenge[:], app[:])
		if err != nil {
			return err
		}
		green.Printf("U2F_REGISTER: %d bytes\n", len(resp))
		return nil
	})
}

// withFirstDevice opens the first discovered device, initializes it,
// and hands it to fn. It does not wink the device itself. The device
// is always closed on the way out.
func withFirstDevice(fn func(*u2fhid.InitializedDevice, u2fhid.AuthenticatorInfo) error) error {
	mgr := u2fhid.NewManager()
	it, err := mgr.Discover()
	if err != nil {
		return err
	}

	dev, ok := it.Next()
	if !ok {
		return fmt.Errorf("no U2F HID devices found")
	}
	defer dev.Close()

	nonce, err := randomNonce()
	if err != nil {
		return err
	}
	initialized, info, err := dev.Initialize(nonce)
	if err != nil {
		return err
	}

	return fn(initialized, info)
}

func main() {
	log.Setup("u2fhidtool", logging.NOTICE, false)

	app := cli.NewApp()
	app.Name = "u2fhidtool"
	app.Usage = "discover and exercise U2F HID authenticators"
	app.Commands = []cli.Command{
		{
			Name:   "list",
			Usage:  "List attached U2F HID devices",
			Action: listCommand,
		},
		{
			Name:   "wink",
			Usage:  "Initialize and wink the first attached device",
			Action: winkCommand,
		},
		{
			Name:   "version",
			Usage:  "Send U2F_VERSION to the first attached device",
			Action: versionCommand,
		},
		{
			Name:   "register",
			Usage:  "Send a U2F_REGISTER APDU to the first attached device",
			Action: registerCommand,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "challenge", Value: "challenge"},
				cli.StringFlag{Name: "app", Value: "app"},
			},
		},
	}
	app.CommandNotFound = func(c *cli.Context, command string) {
		fatalf("unknown command: %s", command)
	}

	if err := app.Run(os.Args); err != nil {
		fatalf("%s", err)
	}
}
