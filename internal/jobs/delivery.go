package jobs

import "github.com/labstack/echo/v4"

type Handler interface {
	SubmitJob() echo.HandlerFunc
	GetStatus() echo.HandlerFunc
	WatchStatus() echo.HandlerFunc
	Preview() echo.HandlerFunc
	DownloadOutput() echo.HandlerFunc
	DownloadByName() echo.HandlerFunc
	RemoveBackground() echo.HandlerFunc
}
