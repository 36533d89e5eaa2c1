package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/dnslogd/internal/devicemap"
	"github.com/user/dnslogd/internal/tui"
)

var (
	deviceType        string
	deviceCategory    string
	deviceDescription string
	exportOutput      string
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Manage the device map",
	Long:  "List, add, auto-detect and export the devices used to label DNS queries.",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mapped devices",
	RunE:  runDevicesList,
}

var devicesAddCmd = &cobra.Command{
	Use:   "add <ip> <name>",
	Short: "Add or replace a device",
	Args:  cobra.ExactArgs(2),
	RunE:  runDevicesAdd,
}

var devicesAnalyzeCmd = &cobra.Command{
	Use:   "analyze [logfile]",
	Short: "Learn devices from a ctrld log",
	Long: `Count queries per client in a ctrld log. Known devices get their query
count and most common domains updated; unknown clients are added as
auto-detected, unconfirmed devices.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDevicesAnalyze,
}

var devicesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the device routing table as JSON",
	RunE:  runDevicesExport,
}

func init() {
	devicesAddCmd.Flags().StringVar(&deviceType, "type", "Unknown", "Device type")
	devicesAddCmd.Flags().StringVar(&deviceCategory, "category", "Unknown", "Device category")
	devicesAddCmd.Flags().StringVar(&deviceDescription, "description", "", "Free-form description")
	devicesExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "routing-table.json", "Output file path")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesAddCmd)
	devicesCmd.AddCommand(devicesAnalyzeCmd)
	devicesCmd.AddCommand(devicesExportCmd)
}

// loadDevices opens the configured device map, treating a missing file as
// an empty map. A corrupt file is an error so it is never overwritten.
func loadDevices() (*devicemap.Map, error) {
	m, err := devicemap.LoadOrEmpty(cfg.DeviceMapPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return m, nil
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	m, err := loadDevices()
	if err != nil {
		return err
	}

	entries := m.List()
	fmt.Println(tui.TitleStyle.Render(fmt.Sprintf("Devices (%d)", len(entries))))
	if len(entries) == 0 {
		fmt.Println(tui.DimStyle.Render("No devices mapped. Use 'dnslogd devices add' or 'dnslogd devices analyze'."))
		return nil
	}

	fmt.Printf("%-16s %-26s %-14s %-14s %s\n", "IP", "Name", "Type", "Category", "Queries")
	for _, e := range entries {
		line := fmt.Sprintf("%-16s %-26s %-14s %-14s %d",
			e.IP, e.Device.Name, e.Device.Type, e.Device.Category, e.Device.QueryCount)
		if e.Device.Confirmed {
			fmt.Println(line)
		} else {
			fmt.Println(tui.DimStyle.Render(line))
		}
	}
	return nil
}

func runDevicesAdd(cmd *cobra.Command, args []string) error {
	ip, name := args[0], args[1]
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}

	m, err := loadDevices()
	if err != nil {
		return err
	}

	m.Add(ip, name, deviceType, deviceCategory, deviceDescription)
	if err := m.Save(); err != nil {
		return err
	}

	fmt.Printf("Added %s -> %s (%s, %s)\n", ip, name, deviceType, deviceCategory)
	return nil
}

func runDevicesAnalyze(cmd *cobra.Command, args []string) error {
	logPath := cfg.LogFilePath
	if len(args) == 1 {
		logPath = args[0]
	}

	m, err := loadDevices()
	if err != nil {
		return err
	}

	before := m.Len()
	clients, err := m.AnalyzeLog(logPath)
	if err != nil {
		return err
	}
	if err := m.Save(); err != nil {
		return err
	}

	fmt.Printf("Analyzed %s: %d active clients, %d newly detected, %d devices mapped\n",
		logPath, clients, m.Len()-before, m.Len())
	return nil
}

func runDevicesExport(cmd *cobra.Command, args []string) error {
	m, err := loadDevices()
	if err != nil {
		return err
	}

	path, err := filepath.Abs(exportOutput)
	if err != nil {
		return err
	}
	if err := m.ExportRoutingTable(path); err != nil {
		return err
	}

	fmt.Printf("Routing table for %d devices saved to: %s\n", m.Len(), path)
	return nil
}
