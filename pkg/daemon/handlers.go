package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cusptools/cusp/pkg/config"
	"github.com/cusptools/cusp/pkg/potcar"
	"github.com/cusptools/cusp/pkg/runner"
	"github.com/cusptools/cusp/pkg/version"
)

func getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func setVaspCommand(c *gin.Context) {
	var cmd string
	if err := c.BindJSON(&cmd); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if cmd == "" {
		err := fmt.Errorf("vasp command must not be empty")
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetVaspCommand(cmd)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set vasp command to %s", cmd)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set vasp command to %s", cmd))
}

func setWithMPI(c *gin.Context) {
	var b bool
	if err := c.BindJSON(&b); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetWithMPI(b)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set with-mpi to %t", b)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func setMPIProcs(c *gin.Context) {
	var n int
	if err := c.BindJSON(&n); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	if n < 0 {
		err := fmt.Errorf("mpi process count must not be negative, got %d", n)
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	conf.SetMPIProcs(n)
	if err := conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set mpi process count to %d", n)

	c.IndentedJSON(http.StatusCreated, "ok")
}

func listPotentials(c *gin.Context) {
	f := potcar.Filter{
		Name:       c.Query("name"),
		Element:    c.Query("element"),
		Functional: c.Query("functional"),
		Hash:       c.Query("hash"),
	}
	if v := c.Query("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		f.Version = n
	}

	if (f == potcar.Filter{}) {
		c.IndentedJSON(http.StatusOK, store.All())
		return
	}

	records, err := store.Find(f)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, records)
}

func getPotential(c *gin.Context) {
	record, err := store.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, potcar.ErrPotentialNotFound) {
			c.IndentedJSON(http.StatusNotFound, err.Error())
			return
		}
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, record)
}

func getPotentialContents(c *gin.Context) {
	contents, err := store.Contents(c.Param("id"))
	if err != nil {
		if errors.Is(err, potcar.ErrPotentialNotFound) {
			c.IndentedJSON(http.StatusNotFound, err.Error())
			return
		}
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/plain", contents)
}

type addPotentialRequest struct {
	Path       string `json:"path"`
	Name       string `json:"name,omitempty"`
	Functional string `json:"functional,omitempty"`
}

func addPotential(c *gin.Context) {
	var req addPotentialRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	name := req.Name
	functional := req.Functional
	if name == "" || functional == "" {
		// Fall back to identifiers derived from the file's location
		// inside a potential library tree.
		info, err := potcar.ParsePotentialPath(req.Path)
		if err != nil {
			c.IndentedJSON(http.StatusBadRequest, err.Error())
			_ = c.AbortWithError(http.StatusBadRequest, err)
			return
		}
		if name == "" {
			name = info.Name
		}
		if functional == "" {
			functional = info.Functional
		}
	}

	pending, err := store.Prepare(req.Path, name, functional)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	record, err := store.Commit(pending)
	if err != nil {
		c.IndentedJSON(http.StatusInternalServerError, err.Error())
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, record)
}

type familyRequest struct {
	Path string `json:"path"`
}

func scanPotentialFamily(c *gin.Context) {
	var req familyRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	result, err := store.PrepareFamily(req.Path)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusOK, result)
}

func addPotentialFamily(c *gin.Context) {
	var req familyRequest
	if err := c.BindJSON(&req); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	result, err := store.PrepareFamily(req.Path)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	outcome := store.CommitFamily(result)

	logrus.WithFields(logrus.Fields{
		"added":   len(outcome.Added),
		"present": len(outcome.Present),
		"skipped": len(outcome.Skipped),
	}).Infof("family import from %s finished", req.Path)

	c.IndentedJSON(http.StatusCreated, outcome)
}

func listJobs(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, jobs.Jobs())
}

func getJob(c *gin.Context) {
	job, ok := jobs.Job(c.Param("id"))
	if !ok {
		c.IndentedJSON(http.StatusNotFound, fmt.Sprintf("job %s not found", c.Param("id")))
		return
	}
	c.IndentedJSON(http.StatusOK, job)
}

func getJobOutputs(c *gin.Context) {
	job, ok := jobs.Job(c.Param("id"))
	if !ok {
		c.IndentedJSON(http.StatusNotFound, fmt.Sprintf("job %s not found", c.Param("id")))
		return
	}
	if job.Outputs == nil {
		c.IndentedJSON(http.StatusNotFound, fmt.Sprintf("job %s has no retrieved outputs yet (state: %s)", job.ID, job.State))
		return
	}
	c.IndentedJSON(http.StatusOK, job.Outputs)
}

func submitJob(c *gin.Context) {
	var spec runner.JobSpec
	if err := c.BindJSON(&spec); err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	job, err := jobs.Submit(spec)
	if err != nil {
		c.IndentedJSON(http.StatusBadRequest, err.Error())
		_ = c.AbortWithError(http.StatusBadRequest, err)
		return
	}
	c.IndentedJSON(http.StatusCreated, job)
}

func getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}
