package kubernetes

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	k8slabels "k8s.io/apimachinery/pkg/labels"
)

// serviceAccountDirectory is where Kubernetes mounts a pod's service
// account token and CA bundle.
const serviceAccountDirectory = "/var/run/secrets/kubernetes.io/serviceaccount"

// APIClient is a PodLookup that queries the cluster's API server directly
// over HTTPS, using the in-cluster service account credentials. There is
// no higher-level Kubernetes client in this system's dependency set
// (see the design notes on client-go); a single GET against the pods
// endpoint doesn't warrant one.
type APIClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewInClusterAPIClient constructs an APIClient from the standard
// in-cluster service account mount.
func NewInClusterAPIClient() (*APIClient, error) {
	host := os.Getenv("KUBERNETES_SERVICE_HOST")
	port := os.Getenv("KUBERNETES_SERVICE_PORT")
	if host == "" || port == "" {
		return nil, fmt.Errorf("not running in a cluster: KUBERNETES_SERVICE_HOST/PORT unset")
	}

	tokenBytes, err := os.ReadFile(serviceAccountDirectory + "/token")
	if err != nil {
		return nil, fmt.Errorf("unable to read service account token: %w", err)
	}

	caBytes, err := os.ReadFile(serviceAccountDirectory + "/ca.crt")
	if err != nil {
		return nil, fmt.Errorf("unable to read service account CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("unable to parse service account CA bundle")
	}

	transport := &http.Transport{TLSClientConfig: &tls.Config{RootCAs: pool}}

	return &APIClient{
		baseURL: fmt.Sprintf("https://%s:%s", host, port),
		token:   strings.TrimSpace(string(tokenBytes)),
		client:  &http.Client{Transport: transport, Timeout: 5 * time.Second},
	}, nil
}

// podResponse mirrors only the fields of a Kubernetes Pod object this
// client needs.
type podResponse struct {
	Metadata struct {
		Labels map[string]string `json:"labels"`
	} `json:"metadata"`
}

// Labels implements PodLookup.Labels.
func (c *APIClient) Labels(namespace, podName string) (k8slabels.Set, error) {
	url := fmt.Sprintf("%s/api/v1/namespaces/%s/pods/%s", c.baseURL, namespace, podName)
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to construct request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.token)
	request.Header.Set("Accept", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("unable to query pod API: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pod API returned status %d", response.StatusCode)
	}

	var pod podResponse
	if err := json.NewDecoder(response.Body).Decode(&pod); err != nil {
		return nil, fmt.Errorf("unable to decode pod response: %w", err)
	}

	return k8slabels.Set(pod.Metadata.Labels), nil
}
