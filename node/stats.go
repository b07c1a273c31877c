package node

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"fleet/util"
	"fleet/worker"
)

// GetStats asks the worker agent behind n for its stats and refreshes the
// node's capacity from them.
func GetStats(n *Node) (*worker.Stats, error) {

	url := fmt.Sprintf("%s/stats", n.Api)
	resp, err := util.HTTPWithRetry(http.Get, url)
	if err != nil {
		log.Printf("Error connecting to %v: %s", n.Api, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Error retrieving stats from %v: %d", n.Api, resp.StatusCode)
		return nil, errors.Errorf("stats from %s: unexpected status %d", n.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "reading stats from %s", n.Name)
	}

	var stats worker.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		log.Printf("Error unmarshalling stats %v: %s", n.Api, err)
		return nil, errors.Wrapf(err, "decoding stats from %s", n.Name)
	}

	n.Capacity = stats.Capacity
	n.CapacityUsed = stats.CapacityUsed
	n.OrderCount = stats.OrderCount
	if stats.Cores > 0 {
		n.Cores = stats.Cores
	}

	return &stats, nil
}
