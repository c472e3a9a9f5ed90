package client

import (
	"encoding/json"
	"net/url"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/cusptools/cusp/pkg/config"
	"github.com/cusptools/cusp/pkg/parser"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/runner"
)

func (c *Client) GetConfig() (*config.RawFileConfig, error) {
	ret, err := c.Get("/config")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get config")
	}

	var conf config.RawFileConfig
	if err := json.Unmarshal([]byte(ret), &conf); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal config")
	}

	return &conf, nil
}

func (c *Client) SetVaspCommand(cmd string) (string, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	return c.Put("/vasp-command", string(payload))
}

func (c *Client) SetWithMPI(enabled bool) (string, error) {
	return c.Put("/with-mpi", strconv.FormatBool(enabled))
}

func (c *Client) SetMPIProcs(n int) (string, error) {
	return c.Put("/mpi-procs", strconv.Itoa(n))
}

func (c *Client) GetVersion() (string, error) {
	ret, err := c.Get("/version")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get version")
	}
	// Remove "" around JSON string. I don't want to use a JSON decoder just for this.
	if len(ret) >= 2 && ret[0] == '"' && ret[len(ret)-1] == '"' {
		ret = ret[1 : len(ret)-1]
	}
	return ret, nil
}

func (c *Client) ListPotentials(f potcar.Filter) ([]potcar.Record, error) {
	q := url.Values{}
	if f.Name != "" {
		q.Set("name", f.Name)
	}
	if f.Element != "" {
		q.Set("element", f.Element)
	}
	if f.Functional != "" {
		q.Set("functional", f.Functional)
	}
	if f.Version != 0 {
		q.Set("version", strconv.Itoa(f.Version))
	}
	if f.Hash != "" {
		q.Set("hash", f.Hash)
	}
	path := "/potentials"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	ret, err := c.Get(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list potentials")
	}

	var records []potcar.Record
	if err := json.Unmarshal([]byte(ret), &records); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal potential records")
	}
	return records, nil
}

func (c *Client) GetPotential(id string) (*potcar.Record, error) {
	ret, err := c.Get("/potentials/" + id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get potential %s", id)
	}

	var record potcar.Record
	if err := json.Unmarshal([]byte(ret), &record); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal potential record")
	}
	return &record, nil
}

func (c *Client) GetPotentialContents(id string) (string, error) {
	ret, err := c.Get("/potentials/" + id + "/contents")
	if err != nil {
		return "", pkgerrors.Wrapf(err, "failed to get potential contents of %s", id)
	}
	return ret, nil
}

type addPotentialRequest struct {
	Path       string `json:"path"`
	Name       string `json:"name,omitempty"`
	Functional string `json:"functional,omitempty"`
}

func (c *Client) AddPotential(path, name, functional string) (*potcar.Record, error) {
	payload, err := json.Marshal(addPotentialRequest{Path: path, Name: name, Functional: functional})
	if err != nil {
		return nil, err
	}

	ret, err := c.Post("/potentials", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to add potential %s", path)
	}

	var record potcar.Record
	if err := json.Unmarshal([]byte(ret), &record); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal potential record")
	}
	return &record, nil
}

type familyRequest struct {
	Path string `json:"path"`
}

func (c *Client) ScanPotentialFamily(path string) (*potcar.FamilyResult, error) {
	payload, err := json.Marshal(familyRequest{Path: path})
	if err != nil {
		return nil, err
	}

	ret, err := c.Post("/potentials/scan", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to scan potential family at %s", path)
	}

	var result potcar.FamilyResult
	if err := json.Unmarshal([]byte(ret), &result); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal family scan result")
	}
	return &result, nil
}

func (c *Client) AddPotentialFamily(path string) (*potcar.FamilyOutcome, error) {
	payload, err := json.Marshal(familyRequest{Path: path})
	if err != nil {
		return nil, err
	}

	ret, err := c.Post("/potentials/family", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to add potential family at %s", path)
	}

	var outcome potcar.FamilyOutcome
	if err := json.Unmarshal([]byte(ret), &outcome); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal family import outcome")
	}
	return &outcome, nil
}

func (c *Client) SubmitJob(spec runner.JobSpec) (*runner.Job, error) {
	payload, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}

	ret, err := c.Post("/jobs", string(payload))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to submit job")
	}

	var job runner.Job
	if err := json.Unmarshal([]byte(ret), &job); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal job")
	}
	return &job, nil
}

func (c *Client) ListJobs() ([]runner.Job, error) {
	ret, err := c.Get("/jobs")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to list jobs")
	}

	var jobs []runner.Job
	if err := json.Unmarshal([]byte(ret), &jobs); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal jobs")
	}
	return jobs, nil
}

func (c *Client) GetJob(id string) (*runner.Job, error) {
	ret, err := c.Get("/jobs/" + id)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get job %s", id)
	}

	var job runner.Job
	if err := json.Unmarshal([]byte(ret), &job); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal job")
	}
	return &job, nil
}

func (c *Client) GetJobOutputs(id string) (*parser.Result, error) {
	ret, err := c.Get("/jobs/" + id + "/outputs")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to get outputs of job %s", id)
	}

	var result parser.Result
	if err := json.Unmarshal([]byte(ret), &result); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to unmarshal job outputs")
	}
	return &result, nil
}
