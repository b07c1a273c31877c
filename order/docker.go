package order

import (
	"context"
	"io"
	"math"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type Docker struct {
	Client *client.Client
	Config Config
}

func NewDocker(c Config) (*Docker, error) {

	dc, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "creating docker client")
	}

	return &Docker{Client: dc, Config: c}, nil
}

type Result struct {
	Error       error
	Action      string
	ContainerId string
	Result      string
}

type DockerInspectResponse struct {
	Error     error
	Container *container.InspectResponse
}

func (d *Docker) Run() Result {
	ctx := context.Background()
	reader, err := d.Client.ImagePull(
		ctx, d.Config.Image, image.PullOptions{},
	)

	if err != nil {
		log.Printf("error pulling image %s", err)
		return Result{Error: err}
	}
	defer reader.Close()
	io.Copy(io.Discard, reader)

	rp := container.RestartPolicy{
		Name: container.RestartPolicyMode(d.Config.RestartPolicy),
	}

	r := container.Resources{
		Memory:   d.Config.Memory,
		NanoCPUs: int64(d.Config.Cpu * math.Pow(10, 9)),
	}

	cc := container.Config{
		Image:        d.Config.Image,
		Tty:          false,
		Env:          d.Config.Env,
		Cmd:          d.Config.Cmd,
		ExposedPorts: d.Config.ExposedPorts,
	}

	hc := container.HostConfig{
		RestartPolicy: rp,
		Resources:     r,
	}

	resp, err := d.Client.ContainerCreate(ctx, &cc, &hc, nil, nil, d.Config.Name)
	if err != nil {
		log.Printf("creating container error %s", err)
		return Result{Error: err}
	}

	err = d.Client.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		log.Printf("starting container error %s", err)
		return Result{Error: err}
	}

	return Result{ContainerId: resp.ID, Action: "start", Result: "success"}

}

func (d *Docker) Stop(id string) Result {

	log.Printf("stopping container %s", id)
	ctx := context.Background()
	err := d.Client.ContainerStop(ctx, id, container.StopOptions{})
	if err != nil {
		log.Printf("error stopping container %s", err)
		return Result{Error: err}
	}

	err = d.Client.ContainerRemove(ctx, id, container.RemoveOptions{
		RemoveVolumes: true,
		RemoveLinks:   false,
		Force:         false,
	})
	if err != nil {
		log.Printf("error removing container %s", err)
		return Result{Error: err}
	}

	return Result{Action: "stop", Result: "success", Error: nil}

}

func (d *Docker) Inspect(id string) DockerInspectResponse {
	ctx := context.Background()
	resp, err := d.Client.ContainerInspect(ctx, id)
	if err != nil {
		log.Printf("error inspecting container %s", err)
		return DockerInspectResponse{Error: err}
	}

	return DockerInspectResponse{Container: &resp}
}
