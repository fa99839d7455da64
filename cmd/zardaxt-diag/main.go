package main

import (
	"fmt"
	"net"
	"os"
	"runtime"

	"github.com/google/gopacket/layers"
	"golang.org/x/net/bpf"

	"github.com/Xxx-Bin/zardaxt/internal/netinfo"
	"github.com/Xxx-Bin/zardaxt/internal/receiver"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: zardaxt-diag <iface> [filter]\n")
		os.Exit(1)
	}
	ifaceName := os.Args[1]
	filter := receiver.DefaultFilter
	if len(os.Args) > 2 {
		filter = os.Args[2]
	}

	fmt.Println("=== netinfo.GetDetails ===")
	details, err := netinfo.GetDetails(ifaceName)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Name:    %s\n", details.Name)
	fmt.Printf("MAC:     %v (len=%d)\n", details.MAC, len(details.MAC))
	fmt.Printf("IPv4:    %v\n", details.IPv4)
	fmt.Printf("HWType:  %d\n", details.HWType)
	fmt.Printf("Kind:    %s\n", details.Kind)

	// Mirrors the choice zardaxt makes when opening the interface.
	backend, link := "afpacket", layers.LinkTypeEthernet
	switch {
	case runtime.GOOS != "linux":
		backend = "pcap"
	case details.Kind == netinfo.LinkTunnel:
		backend, link = "pcap", layers.LinkTypeLinuxSLL
	}
	fmt.Printf("Capture: %s (%s framing)\n", backend, link)

	fmt.Println("\n=== BPF ===")
	fmt.Printf("Filter:  %q\n", filter)
	raw, err := receiver.CompileFilter(link, 2048, filter)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	prog, ok := bpf.Disassemble(raw)
	fmt.Printf("Instructions: %d (fully decoded: %v)\n", len(raw), ok)
	for i, ins := range prog {
		fmt.Printf("  %03d  %v\n", i, ins)
	}

	iface, _ := net.InterfaceByName(ifaceName)
	if iface != nil {
		fmt.Printf("\n=== Interface Details ===\n")
		fmt.Printf("MTU:        %d\n", iface.MTU)
		fmt.Printf("Flags:      %v\n", iface.Flags)
	}
}
