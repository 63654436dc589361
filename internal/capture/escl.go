package capture

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	esclNamespace = "http://schemas.hp.com/imaging/escl/2011/05/03"
	pwgNamespace  = "http://www.pwg.org/schemas/2010/12/sm"

	mdnsService        = "_uscan._tcp"
	mdnsDomain         = "local."
	defaultResourceDir = "eSCL"

	defaultDiscoveryTimeout = 3 * time.Second
	defaultRequestTimeout   = 30 * time.Second
)

type ESCLConfig struct {
	// Endpoints are statically configured scanner base URLs
	// (e.g. http://192.168.1.50:8080/eSCL), probed in addition to mDNS.
	Endpoints        []string
	EnableMDNS       bool
	DiscoveryTimeout time.Duration
	RequestTimeout   time.Duration
}

// ESCLDriver talks to network scanners over the eSCL (AirScan) protocol.
type ESCLDriver struct {
	cfg    ESCLConfig
	client *http.Client

	mu        sync.RWMutex
	endpoints map[string]string // device id -> base URL from the last enumeration
}

func NewESCLDriver(cfg ESCLConfig) *ESCLDriver {
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = defaultDiscoveryTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &ESCLDriver{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		endpoints: make(map[string]string),
	}
}

type scannerCapabilities struct {
	XMLName      xml.Name `xml:"ScannerCapabilities"`
	Version      string   `xml:"Version"`
	MakeAndModel string   `xml:"MakeAndModel"`
	SerialNumber string   `xml:"SerialNumber"`
	UUID         string   `xml:"UUID"`
	Platen       *struct {
		InputCaps esclInputCaps `xml:"PlatenInputCaps"`
	} `xml:"Platen"`
	ADF *struct {
		SimplexCaps *esclInputCaps `xml:"AdfSimplexInputCaps"`
		DuplexCaps  *esclInputCaps `xml:"AdfDuplexInputCaps"`
	} `xml:"Adf"`
}

type esclInputCaps struct {
	SettingProfiles []struct {
		ColorModes           []string `xml:"ColorModes>ColorMode"`
		SupportedResolutions []struct {
			XResolution int `xml:"XResolution"`
			YResolution int `xml:"YResolution"`
		} `xml:"SupportedResolutions>DiscreteResolutions>DiscreteResolution"`
	} `xml:"SettingProfiles>SettingProfile"`
}

type scanSettings struct {
	XMLName        xml.Name `xml:"scan:ScanSettings"`
	ScanNS         string   `xml:"xmlns:scan,attr"`
	PwgNS          string   `xml:"xmlns:pwg,attr"`
	Version        string   `xml:"pwg:Version"`
	InputSource    string   `xml:"pwg:InputSource"`
	XResolution    int      `xml:"scan:XResolution"`
	YResolution    int      `xml:"scan:YResolution"`
	ColorMode      string   `xml:"scan:ColorMode"`
	DocumentFormat string   `xml:"pwg:DocumentFormat"`
	Duplex         bool     `xml:"scan:Duplex"`
}

// Enumerate probes static endpoints and, when enabled, browses mDNS for
// _uscan._tcp responders. Devices that fail the capability probe are skipped.
func (d *ESCLDriver) Enumerate(ctx context.Context) ([]DeviceInfo, error) {
	urls := make([]string, 0, len(d.cfg.Endpoints))
	urls = append(urls, d.cfg.Endpoints...)

	if d.cfg.EnableMDNS {
		discovered, err := d.browse(ctx)
		if err != nil {
			// Static endpoints can still be probed when mDNS is unavailable.
			log.Printf("[escl] mdns browse failed: %v", err)
		}
		urls = append(urls, discovered...)
	}

	seen := make(map[string]bool)
	endpoints := make(map[string]string)
	var devices []DeviceInfo

	for _, base := range urls {
		base = strings.TrimRight(base, "/")
		if seen[base] {
			continue
		}
		seen[base] = true

		caps, err := d.fetchCapabilities(ctx, base)
		if err != nil {
			continue
		}

		info := deviceFromCapabilities(base, caps)
		if _, dup := endpoints[info.ID]; dup {
			continue
		}
		endpoints[info.ID] = base
		devices = append(devices, info)
	}

	d.mu.Lock()
	d.endpoints = endpoints
	d.mu.Unlock()

	return devices, nil
}

func (d *ESCLDriver) browse(ctx context.Context) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, d.cfg.DiscoveryTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(browseCtx, mdnsService, mdnsDomain, entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	var urls []string
	for entry := range entries {
		if len(entry.AddrIPv4) == 0 {
			continue
		}
		rs := defaultResourceDir
		for _, txt := range entry.Text {
			if strings.HasPrefix(txt, "rs=") {
				rs = strings.Trim(strings.TrimPrefix(txt, "rs="), "/")
			}
		}
		urls = append(urls, fmt.Sprintf("http://%s:%d/%s", entry.AddrIPv4[0], entry.Port, rs))
	}
	return urls, nil
}

func (d *ESCLDriver) fetchCapabilities(ctx context.Context, base string) (*scannerCapabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/ScannerCapabilities", nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capabilities probe returned %d", resp.StatusCode)
	}

	caps := &scannerCapabilities{}
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(caps); err != nil {
		return nil, fmt.Errorf("decode capabilities: %w", err)
	}
	return caps, nil
}

func deviceFromCapabilities(base string, caps *scannerCapabilities) DeviceInfo {
	id := caps.UUID
	if id == "" {
		// Some firmwares omit the UUID; fall back to a digest of the endpoint
		// so the id stays stable across enumerations.
		sum := sha1.Sum([]byte(base))
		id = "escl-" + hex.EncodeToString(sum[:8])
	}

	name := caps.MakeAndModel
	if name == "" {
		name = "Unknown Scanner"
	}
	manufacturer := "Unknown"
	model := name
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		manufacturer = name[:idx]
		model = name[idx+1:]
	}

	info := DeviceInfo{
		ID:             id,
		Name:           name,
		Manufacturer:   manufacturer,
		Model:          model,
		ConnectionType: "eSCL",
		SupportsColor:  false,
		SupportsDuplex: caps.ADF != nil && caps.ADF.DuplexCaps != nil,
	}

	var inputCaps []*esclInputCaps
	if caps.Platen != nil {
		inputCaps = append(inputCaps, &caps.Platen.InputCaps)
	}
	if caps.ADF != nil {
		if caps.ADF.SimplexCaps != nil {
			inputCaps = append(inputCaps, caps.ADF.SimplexCaps)
		}
		if caps.ADF.DuplexCaps != nil {
			inputCaps = append(inputCaps, caps.ADF.DuplexCaps)
		}
	}

	resolutions := make(map[int]bool)
	for _, ic := range inputCaps {
		for _, profile := range ic.SettingProfiles {
			for _, mode := range profile.ColorModes {
				if strings.HasPrefix(mode, "RGB") {
					info.SupportsColor = true
				}
			}
			for _, res := range profile.SupportedResolutions {
				if res.XResolution > 0 {
					resolutions[res.XResolution] = true
				}
			}
		}
	}
	for res := range resolutions {
		info.Resolutions = append(info.Resolutions, res)
	}
	if len(info.Resolutions) == 0 {
		info.Resolutions = []int{150, 200, 300, 600}
	}

	return info
}

// Connect resolves the device id against the last enumeration, running one
// if no enumeration has happened yet.
func (d *ESCLDriver) Connect(ctx context.Context, deviceID string) (Connection, error) {
	d.mu.RLock()
	base, ok := d.endpoints[deviceID]
	empty := len(d.endpoints) == 0
	d.mu.RUnlock()

	if !ok && empty {
		if _, err := d.Enumerate(ctx); err != nil {
			return nil, err
		}
		d.mu.RLock()
		base, ok = d.endpoints[deviceID]
		d.mu.RUnlock()
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}

	return &esclConnection{driver: d, base: base}, nil
}

type esclConnection struct {
	driver *ESCLDriver
	base   string
}

// Transfer creates an eSCL scan job and streams its first document. Deleting
// the job on the scanner is tied to closing the returned reader.
func (c *esclConnection) Transfer(ctx context.Context, params Params) (io.ReadCloser, error) {
	colorMode := "Grayscale8"
	if params.Color {
		colorMode = "RGB24"
	}
	inputSource := "Platen"
	if params.Duplex {
		inputSource = "Feeder"
	}

	settings := scanSettings{
		ScanNS:         esclNamespace,
		PwgNS:          pwgNamespace,
		Version:        "2.6",
		InputSource:    inputSource,
		XResolution:    params.DPI,
		YResolution:    params.DPI,
		ColorMode:      colorMode,
		DocumentFormat: "image/jpeg",
		Duplex:         params.Duplex,
	}

	body, err := xml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("marshal scan settings: %w", err)
	}
	body = append([]byte(xml.Header), body...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/ScanJobs", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.driver.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: scanner rejected job with status %d", ErrCaptureFailed, resp.StatusCode)
	}

	jobURL := resp.Header.Get("Location")
	if jobURL == "" {
		return nil, fmt.Errorf("%w: scanner did not return a job location", ErrCaptureFailed)
	}
	if strings.HasPrefix(jobURL, "/") {
		baseURL, err := url.Parse(c.base)
		if err != nil {
			return nil, fmt.Errorf("%w: bad endpoint url %q", ErrCaptureFailed, c.base)
		}
		jobURL = baseURL.Scheme + "://" + baseURL.Host + jobURL
	}
	jobURL = strings.TrimRight(jobURL, "/")

	docReq, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL+"/NextDocument", nil)
	if err != nil {
		c.deleteJob(jobURL)
		return nil, err
	}
	docResp, err := c.driver.client.Do(docReq)
	if err != nil {
		c.deleteJob(jobURL)
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	if docResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, docResp.Body)
		docResp.Body.Close()
		c.deleteJob(jobURL)
		return nil, fmt.Errorf("%w: document fetch returned %d", ErrCaptureFailed, docResp.StatusCode)
	}

	return &esclDocument{body: docResp.Body, conn: c, jobURL: jobURL}, nil
}

func (c *esclConnection) deleteJob(jobURL string) {
	req, err := http.NewRequest(http.MethodDelete, jobURL, nil)
	if err != nil {
		return
	}
	resp, err := c.driver.client.Do(req)
	if err != nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func (c *esclConnection) Close() error {
	return nil
}

type esclDocument struct {
	body   io.ReadCloser
	conn   *esclConnection
	jobURL string
}

func (d *esclDocument) Read(p []byte) (int, error) {
	return d.body.Read(p)
}

func (d *esclDocument) Close() error {
	err := d.body.Close()
	d.conn.deleteJob(d.jobURL)
	return err
}
