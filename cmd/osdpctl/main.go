// Command osdpctl is a thin demonstration driver for the go-osdp
// library -- the way cmd/canopen and examples/master exercise
// gocanopen, not a product-grade access-control tool. It loads a PD
// profile from an ini file, opens one serial channel per distinct
// ChannelID, and runs a control panel that logs events as they occur.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/go-osdp/osdp"
	"github.com/go-osdp/osdp/channel"
	_ "github.com/go-osdp/osdp/channel/serial"
	"github.com/go-osdp/osdp/config"
	"github.com/go-osdp/osdp/cp"
	"github.com/go-osdp/osdp/pcap"
)

const defaultRefreshPeriod = 50 * time.Millisecond

func main() {
	profilePath := flag.String("p", "", "pd profile .ini path")
	capturePath := flag.String("capture", "", "optional pcap output path")
	debug := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *profilePath == "" {
		fmt.Println("usage: osdpctl -p profile.ini [-capture trace.pcap] [-v]")
		os.Exit(1)
	}

	profiles, err := config.LoadProfile(*profilePath)
	if err != nil {
		fmt.Printf("loading profile: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Println("profile has no [pd \"name\"] sections")
		os.Exit(1)
	}

	infos := make([]cp.Info, 0, len(profiles))
	channels := map[string]channel.Channel{}
	for _, p := range profiles {
		ch, ok := channels[p.ChannelID]
		if !ok {
			ch, err = channel.Open("serial", p.ChannelID)
			if err != nil {
				fmt.Printf("opening channel %q for pd %q: %v\n", p.ChannelID, p.Name, err)
				os.Exit(1)
			}
			channels[p.ChannelID] = ch
		}
		infos = append(infos, cp.Info{
			Address:   p.Address,
			Flags:     cp.Flag(p.Flags),
			MasterKey: p.MasterKey,
			Channel:   ch,
			ChannelID: p.ChannelID,
		})
	}

	theCP := osdp.SetupCP(infos, nil)
	theCP.SetEventCallback(func(ev cp.Event) {
		log.Infof("osdpctl: pd %d: event %v", ev.PDIndex, ev.Kind)
	})

	if *capturePath != "" {
		f, err := os.Create(*capturePath)
		if err != nil {
			fmt.Printf("opening capture file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		writer, err := pcap.NewWriter(f)
		if err != nil {
			fmt.Printf("writing pcap header: %v\n", err)
			os.Exit(1)
		}
		defer writer.Close()
		theCP.SetCapture(writer.Capture)
	}

	log.Infof("osdpctl: managing %d pd(s)", len(infos))
	for {
		theCP.Refresh()
		time.Sleep(defaultRefreshPeriod)
	}
}
