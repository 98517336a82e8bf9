package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"gpsgateway/internal/api/util"
	"gpsgateway/internal/core/model"
	"gpsgateway/internal/protocol/tracker"
)

type options struct {
	tcpAddr   string
	udpAddr   string
	apiURL    string
	secret    string
	imei      string
	command   string
	count     int
	interval  time.Duration
	extended  bool
	useUDP    bool
	listenFor time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.tcpAddr, "tcp", "localhost:10100", "gateway TCP address")
	flag.StringVar(&o.udpAddr, "udp", "localhost:10110", "gateway UDP address")
	flag.StringVar(&o.apiURL, "api", "http://localhost:8000", "gateway admin API base URL")
	flag.StringVar(&o.secret, "secret", os.Getenv("JWT_ACCESS_SECRET"), "JWT secret for the admin API")
	flag.StringVar(&o.imei, "imei", "867567021398618", "device IMEI")
	flag.StringVar(&o.command, "command", "", "queue this command through the API before reporting")
	flag.IntVar(&o.count, "count", 3, "number of reports to send")
	flag.DurationVar(&o.interval, "interval", time.Second, "delay between reports")
	flag.BoolVar(&o.extended, "extended", false, "send the extended layout")
	flag.BoolVar(&o.useUDP, "udp-only", false, "send over UDP instead of TCP")
	flag.DurationVar(&o.listenFor, "listen", 2*time.Second, "how long to wait for acks and commands after each report")
	flag.Parse()

	if o.command != "" {
		if err := queueCommand(o); err != nil {
			fmt.Printf("Error queueing command: %v\n", err)
			os.Exit(1)
		}
	}

	var err error
	if o.useUDP {
		err = runUDP(o)
	} else {
		err = runTCP(o)
	}
	if err != nil {
		fmt.Printf("Simulation failed: %v\n", err)
		os.Exit(1)
	}
}

func runTCP(o options) error {
	conn, err := net.Dial("tcp", o.tcpAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", o.tcpAddr, err)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s as %s\n", o.tcpAddr, o.imei)
	r := bufio.NewReader(conn)

	for i := 0; i < o.count; i++ {
		frame := append(tracker.Encode(sampleReport(o, i)), '\r', '\n')
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Sent: %s", frame)

		conn.SetReadDeadline(time.Now().Add(o.listenFor))
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					break
				}
				return fmt.Errorf("read: %w", err)
			}
			fmt.Printf("Received: %s\n", strings.TrimRight(line, "\r\n"))
		}
		time.Sleep(o.interval)
	}
	return nil
}

func runUDP(o options) error {
	conn, err := net.Dial("udp", o.udpAddr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", o.udpAddr, err)
	}
	defer conn.Close()

	for i := 0; i < o.count; i++ {
		frame := append(tracker.Encode(sampleReport(o, i)), '\n')
		if _, err := conn.Write(frame); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Printf("Sent datagram: %s", frame)
		time.Sleep(o.interval)
	}
	return nil
}

func sampleReport(o options, i int) *model.LocationReport {
	r := model.NewLocationReport(o.imei, time.Now().UTC().Truncate(time.Second))
	r.Sequence = fmt.Sprint(i + 1)
	r.Valid = true
	r.Latitude = 22.629190 + float64(i)*0.0001
	r.Longitude = 114.143690 + float64(i)*0.0001
	r.Speed = 40
	course := 90.0
	r.Course = &course
	if o.extended {
		r.Variant = model.VariantExtended
		odometer := 1200.5 + float64(i)
		r.Odometer = &odometer
		r.Battery = "98"
		r.Cell = &model.CellInfo{MCC: "460", MNC: "00", LAC: "2545", CI: "42F3"}
	} else {
		r.Variant = model.VariantCompact
	}
	return r
}

func queueCommand(o options) error {
	token, err := util.NewSigner(o.secret).Sign("simulator", "admin")
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"imei": o.imei, "command": o.command})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, o.apiURL+"/api/commands", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("Queue command status: %d\n", resp.StatusCode)
	fmt.Printf("Response body: %s\n", respBody)
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
