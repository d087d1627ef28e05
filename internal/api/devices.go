package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/openacq/camnode/internal/api/models"
	"github.com/openacq/camnode/internal/backend"
)

// registerDeviceRoutes registers device enumeration endpoints
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "Enumerate devices visible to the acquisition backend. The index of each entry is the device_index used to create sessions.",
		Tags:        []string{"devices"},
		Errors:      []int{500},
	}, func(ctx context.Context, input *struct{}) (*models.DeviceListResponse, error) {
		infos := s.manager.Devices()

		apiDevices := make([]models.DeviceData, len(infos))
		for i, info := range infos {
			apiDevices[i] = deviceToAPI(i, info)
		}

		return &models.DeviceListResponse{
			Body: models.DeviceListData{
				Devices: apiDevices,
				Count:   len(apiDevices),
			},
		}, nil
	})
}

// deviceToAPI converts a backend device description to API device data
func deviceToAPI(index int, info backend.DeviceInfo) models.DeviceData {
	return models.DeviceData{
		Index:  index,
		ID:     info.ID,
		Model:  info.Model,
		Vendor: info.Vendor,
		Serial: info.Serial,
	}
}
